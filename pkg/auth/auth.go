package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Authentication is one of BearerToken, BasicHTTP, CondaToken or
// S3Credentials.
type Authentication interface {
	isAuthentication()
}

// BearerToken is sent as "Authorization: Bearer <token>".
type BearerToken string

// BasicHTTP is sent as HTTP basic auth.
type BasicHTTP struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CondaToken is inserted into the request path as /t/<token>.
type CondaToken string

// S3Credentials are used to presign s3:// requests.
type S3Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty"`
}

func (BearerToken) isAuthentication()   {}
func (BasicHTTP) isAuthentication()     {}
func (CondaToken) isAuthentication()    {}
func (S3Credentials) isAuthentication() {}

// entry is the on-disk form: an object with exactly one key naming the
// variant.
type entry struct {
	BearerToken   *string        `json:"BearerToken,omitempty"`
	BasicHTTP     *BasicHTTP     `json:"BasicHTTP,omitempty"`
	CondaToken    *string        `json:"CondaToken,omitempty"`
	S3Credentials *S3Credentials `json:"S3Credentials,omitempty"`
}

func decodeEntry(host string, raw json.RawMessage) (Authentication, error) {
	var e entry

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("credentials for %s: %w", host, err)
	}

	switch {
	case e.BearerToken != nil:
		return BearerToken(*e.BearerToken), nil
	case e.BasicHTTP != nil:
		return *e.BasicHTTP, nil
	case e.CondaToken != nil:
		return CondaToken(*e.CondaToken), nil
	case e.S3Credentials != nil:
		return *e.S3Credentials, nil
	default:
		return nil, fmt.Errorf("credentials for %s: no authentication method given", host)
	}
}
