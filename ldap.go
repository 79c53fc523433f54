package ldap

import (
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Dialer opens directory connections. NewClient uses go-ldap's DialURL
// unless WithDialer says otherwise.
type Dialer interface {
	Dial(url string, tlsConfig *tls.Config) (Backend, error)
}

type goLDAPDialer struct{}

func (goLDAPDialer) Dial(url string, tlsConfig *tls.Config) (Backend, error) {
	return ldap.DialURL(url, ldap.DialWithTLSConfig(tlsConfig))
}

// Backend is the part of *ldap.Conn a Connection drives.
type Backend interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	StartTLS(config *tls.Config) error
	SetTimeout(timeout time.Duration)
	Close() error
}
