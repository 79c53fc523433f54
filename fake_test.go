package ldap

import (
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
)

type bindCall struct {
	dn       string
	password string
}

type fakeConn struct {
	bindErr    func(dn, password string) error
	searchResp *ldap.SearchResult
	searchErr  error
	startTLS   error

	binds     []bindCall
	searches  []*ldap.SearchRequest
	tlsCalled bool
	timeout   time.Duration
	closed    int
}

func (f *fakeConn) Bind(username, password string) error {
	f.binds = append(f.binds, bindCall{dn: username, password: password})
	if f.bindErr != nil {
		return f.bindErr(username, password)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches = append(f.searches, req)
	return f.searchResp, f.searchErr
}

func (f *fakeConn) StartTLS(*tls.Config) error {
	f.tlsCalled = true
	return f.startTLS
}

func (f *fakeConn) SetTimeout(d time.Duration) {
	f.timeout = d
}

type fakeDialer struct {
	conns map[string]*fakeConn
	dials []string
	tls   []*tls.Config
}

func (f *fakeDialer) Dial(url string, tlsConfig *tls.Config) (Backend, error) {
	f.dials = append(f.dials, url)
	f.tls = append(f.tls, tlsConfig)
	conn, ok := f.conns[url]
	if !ok {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused"))
	}
	return conn, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "ldap.example.com"
	cfg.BaseDN = "dc=example,dc=com"
	cfg.CommonBindDN = "cn=reader,dc=example,dc=com"
	cfg.CommonBindPassword = "reader-secret"
	cfg.Auth = AuthConfig{
		BindDN:       "cn={username},ou=people,dc=example,dc=com",
		SearchFilter: "(uid={username})",
	}
	return cfg
}

const testURL = "ldap://ldap.example.com:389"

// newTestConnection returns a connection to a fake directory.
func newTestConnection(cfg Config, conn *fakeConn) (*Connection, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c.dialer = &fakeDialer{conns: map[string]*fakeConn{testURL: conn}}
	return c.Connect()
}

func personEntry(dn string, attrs map[string][]string) *ldap.Entry {
	return ldap.NewEntry(dn, attrs)
}
