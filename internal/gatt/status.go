package gatt

import "fmt"

// Status is the native stack's completion code for a request. Zero means
// success; everything else is stack specific but stable enough to surface to
// callers verbatim.
type Status int

// Well-known status codes, matching the usual GATT numbering.
const (
	StatusSuccess                    Status = 0x00
	StatusReadNotPermitted           Status = 0x02
	StatusWriteNotPermitted          Status = 0x03
	StatusInsufficientAuthentication Status = 0x05
	StatusRequestNotSupported        Status = 0x06
	StatusInvalidOffset              Status = 0x07
	StatusInvalidAttributeLength     Status = 0x0d
	StatusConnectionCongested        Status = 0x8f
	StatusFailure                    Status = 0x101
)

// Ok reports whether the status is a success.
func (s Status) Ok() bool { return s == StatusSuccess }

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusReadNotPermitted:
		return "read not permitted"
	case StatusWriteNotPermitted:
		return "write not permitted"
	case StatusInsufficientAuthentication:
		return "insufficient authentication"
	case StatusRequestNotSupported:
		return "request not supported"
	case StatusInvalidOffset:
		return "invalid offset"
	case StatusInvalidAttributeLength:
		return "invalid attribute length"
	case StatusConnectionCongested:
		return "connection congested"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status 0x%x", int(s))
	}
}
