package client

import (
	"regexp"
	"strings"
)

// FullName is owner/name.
type FullName struct {
	Owner string
	Name  string
}

func (n FullName) String() string { return n.Owner + "/" + n.Name }

func (n FullName) segments() []string { return []string{n.Owner, n.Name} }

func ParseFullName(kind, s string) (FullName, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return FullName{}, &IdentifierError{Kind: kind, Value: s}
	}
	return FullName{Owner: owner, Name: name}, nil
}

// Identifier is either a hex id or a full name.
type Identifier struct {
	ID   string
	Name FullName
}

func (i Identifier) IsID() bool { return i.ID != "" }

func (i Identifier) String() string {
	if i.IsID() {
		return i.ID
	}
	return i.Name.String()
}

// segments addresses the resource by id:<hex> or by owner/name.
func (i Identifier) segments() []string {
	if i.IsID() {
		return []string{"id:" + i.ID}
	}
	return i.Name.segments()
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func parseIdentifier(kind, s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if isHex(s) {
		return Identifier{ID: s}, nil
	}
	name, err := ParseFullName(kind, s)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Name: name}, nil
}

func ParseSourceIdentifier(s string) (Identifier, error)  { return parseIdentifier("source", s) }
func ParseDatasetIdentifier(s string) (Identifier, error) { return parseIdentifier("dataset", s) }

var bucketFullNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}/[A-Za-z0-9_-]{1,256}$`)

func ParseBucketFullName(s string) (FullName, error) {
	if !bucketFullNameRE.MatchString(s) {
		return FullName{}, &IdentifierError{Kind: "bucket name", Value: s}
	}
	return ParseFullName("bucket name", s)
}

func ParseBucketIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if isHex(s) {
		return Identifier{ID: s}, nil
	}
	name, err := ParseBucketFullName(s)
	if err != nil {
		return Identifier{}, &IdentifierError{Kind: "bucket", Value: s}
	}
	return Identifier{Name: name}, nil
}

func ParseUserID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !isHex(s) {
		return "", &IdentifierError{Kind: "user", Value: s}
	}
	return s, nil
}

func ValidUsername(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func ParseProjectName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "/") {
		return "", &IdentifierError{Kind: "project", Value: s}
	}
	return s, nil
}

// StreamFullName is owner/dataset/stream.
type StreamFullName struct {
	Dataset FullName
	Stream  string
}

func (n StreamFullName) String() string { return n.Dataset.String() + "/" + n.Stream }

func ParseStreamFullName(s string) (StreamFullName, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return StreamFullName{}, &IdentifierError{Kind: "stream", Value: s}
	}
	return StreamFullName{Dataset: FullName{Owner: parts[0], Name: parts[1]}, Stream: parts[2]}, nil
}
