// Package httpauth plugs the authenticator into net/http: credential
// extraction, a login endpoint and a Basic auth middleware.
package httpauth

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/pkg/errors"
)

// maxBodyBytes bounds login request bodies.
const maxBodyBytes = 1 << 16

// FormFields names the request fields holding the credentials.
type FormFields struct {
	Username string
	Password string
}

func DefaultFormFields() FormFields {
	return FormFields{Username: "username", Password: "password"}
}

// Credentials extracts a username and password from a JSON body, a form or
// the Authorization header, in that order.
func Credentials(r *http.Request, fields FormFields) (username, password string, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case r.Body != nil && mediaType == "application/json":
		body := map[string]any{}
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			return "", "", errors.Wrap(err, "decode credentials")
		}
		username, _ = body[fields.Username].(string)
		password, _ = body[fields.Password].(string)

	case r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut):
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return "", "", errors.Wrap(err, "parse form")
		}
		username = r.PostForm.Get(fields.Username)
		password = r.PostForm.Get(fields.Password)
	}

	if username == "" && password == "" {
		if u, p, ok := r.BasicAuth(); ok {
			return u, p, nil
		}
	}
	return username, password, nil
}
