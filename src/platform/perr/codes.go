package perr

// POSIX-style error code constants attached to oops errors across the app.
const (
	EAGAIN    string = "EAGAIN"
	EAUTH     string = "EAUTH"
	EBADMSG   string = "EBADMSG"
	ECANCELED string = "ECANCELED"
	ECONFIG   string = "ECONFIG"
	EEXIST    string = "EEXIST"
	EINIT     string = "EINIT"
	EINVAL    string = "EINVAL"
	EIO       string = "EIO"
	ENOENT    string = "ENOENT"
	ENOTCONN  string = "ENOTCONN"
	EPIPE     string = "EPIPE"
	EPROTO    string = "EPROTO"
	ETIMEDOUT string = "ETIMEDOUT"
)

// Descriptions maps each error code to a human-readable message.
var Descriptions = map[string]string{
	EAGAIN:    "Resource temporarily unavailable",
	EAUTH:     "Authentication error",
	EBADMSG:   "Bad message",
	ECANCELED: "Operation canceled",
	ECONFIG:   "Configuration failure",
	EEXIST:    "Already exists",
	EINIT:     "Initialization failure",
	EINVAL:    "Invalid argument",
	EIO:       "Input/output error",
	ENOENT:    "No such entity",
	ENOTCONN:  "Not connected",
	EPIPE:     "Broken pipe",
	EPROTO:    "Protocol error",
	ETIMEDOUT: "Operation timed out",
}

// Description returns a human-readable description for a code.
func Description(code string) string {
	if desc, ok := Descriptions[code]; ok {
		return desc
	}
	return "Unknown error"
}
