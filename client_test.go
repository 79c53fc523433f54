package ldap

import (
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "empty host", mutate: func(c *Config) { c.Host = " " }, wantErr: "empty Host"},
		{name: "empty base dn", mutate: func(c *Config) { c.BaseDN = "" }, wantErr: "empty BaseDN"},
		{name: "protocol version 2", mutate: func(c *Config) { c.ProtocolVersion = 2 }, wantErr: "only LDAPv3"},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "invalid Port"},
		{name: "bind dn without placeholder", mutate: func(c *Config) { c.Auth.BindDN = "cn=admin" }, wantErr: "Auth.BindDN"},
		{name: "filter without placeholder", mutate: func(c *Config) { c.Auth.SearchFilter = "(uid=*)" }, wantErr: "Auth.SearchFilter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			c, err := NewClient(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestNewClientFillsDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 0
	cfg.ProtocolVersion = 0

	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, c.Config().Port)
	assert.Equal(t, DefaultProtocolVersion, c.Config().ProtocolVersion)

	cfg.BaseDN = "dc=changed"
	assert.Equal(t, "dc=example,dc=com", c.Config().BaseDN, "client keeps its own copy")
}

func TestHostURL(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 10389
	c, err := NewClient(cfg)
	require.NoError(t, err)

	tests := map[string]string{
		"ldap.example.com":             "ldap://ldap.example.com:10389",
		"ldap.example.com:636":         "ldap://ldap.example.com:636",
		"ldaps://ldap.example.com":     "ldaps://ldap.example.com",
		"ldap://ldap.example.com:3389": "ldap://ldap.example.com:3389",
		"192.0.2.10":                   "ldap://192.0.2.10:10389",
	}
	for host, want := range tests {
		got, err := c.hostURL(host)
		require.NoError(t, err, host)
		assert.Equal(t, want, got, host)
	}
}

func TestConnectTriesHostsInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "down.example.com ldap.example.com"
	cfg.Timeout = 3 * time.Second

	c, err := NewClient(cfg)
	require.NoError(t, err)
	up := &fakeConn{}
	dialer := &fakeDialer{conns: map[string]*fakeConn{testURL: up}}
	c.dialer = dialer

	conn, err := c.Connect()
	require.NoError(t, err)
	assert.Equal(t, []string{"ldap://down.example.com:389", testURL}, dialer.dials)
	require.Len(t, dialer.tls, 2)
	assert.Equal(t, "ldap.example.com", dialer.tls[1].ServerName)
	assert.Equal(t, 3*time.Second, up.timeout)
	assert.False(t, up.tlsCalled)
	assert.Equal(t, Unbound, conn.Bound())
}

func TestConnectAggregatesErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "a.example.com b.example.com"

	c, err := NewClient(cfg)
	require.NoError(t, err)
	c.dialer = &fakeDialer{}

	_, err = c.Connect()
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
}

func TestConnectStartTLS(t *testing.T) {
	cfg := testConfig()
	cfg.StartTLS = true

	up := &fakeConn{}
	_, err := newTestConnection(cfg, up)
	require.NoError(t, err)
	assert.True(t, up.tlsCalled)

	failing := &fakeConn{startTLS: errors.New("handshake failure")}
	_, err = newTestConnection(cfg, failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot start tls")
	assert.Equal(t, 1, failing.closed)
}

func TestCustomCA(t *testing.T) {
	cfg := testConfig()
	cfg.CustomCA = "not a certificate"
	c, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = c.tlsConfig("ldap.example.com")
	assert.Error(t, err)
}

func TestBindUsingCredentials(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fc := &fakeConn{}
		conn, err := newTestConnection(testConfig(), fc)
		require.NoError(t, err)

		require.NoError(t, conn.BindUsingCredentials("cn=john.doe,ou=people,dc=example,dc=com", "secret"))
		assert.Equal(t, BoundUser, conn.Bound())
	})

	t.Run("invalid credentials", func(t *testing.T) {
		fc := &fakeConn{bindErr: func(string, string) error {
			return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
		}}
		conn, err := newTestConnection(testConfig(), fc)
		require.NoError(t, err)

		err = conn.BindUsingCredentials("cn=john.doe,ou=people,dc=example,dc=com", "wrong")
		var derr *DirectoryError
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, uint16(ldap.LDAPResultInvalidCredentials), derr.Code)
		assert.Equal(t, ErrorCategoryAuthentication, derr.Category())
		assert.Equal(t, Unbound, conn.Bound())
	})

	t.Run("result code zero is not an error", func(t *testing.T) {
		fc := &fakeConn{bindErr: func(string, string) error {
			return ldap.NewError(ldap.LDAPResultSuccess, errors.New("odd server"))
		}}
		conn, err := newTestConnection(testConfig(), fc)
		require.NoError(t, err)

		assert.NoError(t, conn.BindUsingCredentials("cn=x,dc=example,dc=com", "pw"))
		assert.Equal(t, Unbound, conn.Bound())
	})
}

func TestBindUsingServiceAccount(t *testing.T) {
	fc := &fakeConn{}
	conn, err := newTestConnection(testConfig(), fc)
	require.NoError(t, err)

	require.NoError(t, conn.BindUsingServiceAccount())
	assert.Equal(t, BoundServiceAccount, conn.Bound())
	assert.Equal(t, []bindCall{{dn: "cn=reader,dc=example,dc=com", password: "reader-secret"}}, fc.binds)
}

func TestHideErrors(t *testing.T) {
	bindErr := func(string, string) error {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr: DSID-0C09042A"))
	}

	cfg := testConfig()
	conn, err := newTestConnection(cfg, &fakeConn{bindErr: bindErr})
	require.NoError(t, err)
	err = conn.BindUsingCredentials("cn=a,dc=example,dc=com", "pw")
	assert.Contains(t, err.Error(), "DSID-0C09042A")

	cfg.HideErrors = true
	conn, err = newTestConnection(cfg, &fakeConn{bindErr: bindErr})
	require.NoError(t, err)
	err = conn.BindUsingCredentials("cn=a,dc=example,dc=com", "pw")
	assert.Equal(t, "LDAP bind failed (code 49)", err.Error())
	assert.True(t, IsDirectoryError(err))
}

func TestClose(t *testing.T) {
	fc := &fakeConn{}
	conn, err := newTestConnection(testConfig(), fc)
	require.NoError(t, err)
	require.NoError(t, conn.BindUsingServiceAccount())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, fc.closed)
	assert.Equal(t, Unbound, conn.Bound())
}
