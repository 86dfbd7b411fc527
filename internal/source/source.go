package source

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Source describes one live media input to be recorded.
// Identity is the (Protocol, Host, Port, Path) tuple; ID is the store key and
// names the recording directory.
type Source struct {
	ID             int64     `json:"id"`
	Protocol       string    `json:"protocol"`
	Host           string    `json:"host"`
	Port           int       `json:"port"`
	Path           string    `json:"path"`
	Username       string    `json:"-"`
	Password       string    `json:"-"`
	SegmentSeconds int       `json:"segment_seconds"`
	LogLevel       LogLevel  `json:"log_level"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the fields the capture tool needs.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Protocol) == "" {
		return errors.New("protocol required")
	}
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("host required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port out of range: %d", s.Port)
	}
	if s.SegmentSeconds <= 0 {
		return fmt.Errorf("segment duration must be positive, got %d", s.SegmentSeconds)
	}
	if _, ok := levelValues[s.LogLevel]; !ok {
		return fmt.Errorf("unknown log level %q", s.LogLevel)
	}
	return nil
}

// URL builds the input URL including credentials.
func (s Source) URL() string {
	u := url.URL{
		Scheme: strings.ToLower(s.Protocol),
		Host:   s.hostPort(),
		Path:   s.normalizedPath(),
	}
	if s.Username != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.Username, s.Password)
		} else {
			u.User = url.User(s.Username)
		}
	}
	return u.String()
}

// Name is a log-friendly identity without credentials.
func (s Source) Name() string {
	return strings.ToLower(s.Protocol) + "://" + s.hostPort() + s.normalizedPath()
}

// Dir is the recording directory name under the records root.
func (s Source) Dir() string { return strconv.FormatInt(s.ID, 10) }

// Key returns the identity tuple as a comparable string.
func (s Source) Key() string {
	return strings.Join([]string{strings.ToLower(s.Protocol), strings.ToLower(s.Host), strconv.Itoa(s.Port), s.normalizedPath()}, "|")
}

func (s Source) hostPort() string {
	if s.Port == 0 {
		return s.Host
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Source) normalizedPath() string {
	p := strings.TrimSpace(s.Path)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
