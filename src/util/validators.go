package util

import (
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

func ValidateNotBlank(fl validator.FieldLevel) bool {
	return len(strings.TrimSpace(fl.Field().String())) > 0
}

func ValidateHostPortList(fl validator.FieldLevel) bool {
	brokers, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}

	for _, broker := range brokers {
		if !isValidHostPort(broker) {
			return false
		}
	}

	return true
}

func isValidHostPort(s string) bool {
	host, port, err := net.SplitHostPort(s)
	if err == nil {
		if host == "" || !isValidPort(port) {
			return false
		}
		return true
	}

	if net.ParseIP(s) != nil {
		return true
	}

	return s != ""
}

func isValidPort(portStr string) bool {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port > 0 && port <= 65535
}
