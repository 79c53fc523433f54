package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultPort            = 389
	DefaultProtocolVersion = 3
)

type Client struct {
	dialer Dialer
	config Config
	logger *zap.Logger
}

// BindState tells who a connection is currently bound as.
type BindState int

const (
	Unbound BindState = iota
	BoundServiceAccount
	BoundUser
)

func (s BindState) String() string {
	switch s {
	case BoundServiceAccount:
		return "service-account"
	case BoundUser:
		return "user"
	default:
		return "unbound"
	}
}

// Connection owns one directory session. It is created by Client.Connect
// and must be closed by the caller.
type Connection struct {
	conn   Backend
	client *Client
	host   string
	state  BindState
	mutex  sync.Mutex
}

type Config struct {
	// Host is one or more space-separated hosts, tried in order. Each may be
	// a bare host, host:port or an ldap:// or ldaps:// URL.
	Host            string
	Port            int
	ProtocolVersion int

	// BaseDN is the default base of Find.
	BaseDN string

	StartTLS bool
	// HideErrors keeps client error details out of logs and error strings.
	HideErrors bool

	Insecure bool
	CustomCA string
	Timeout  time.Duration

	// CommonBindDN is the service account used for searches that must not
	// run under the user's own credentials.
	CommonBindDN       string
	CommonBindPassword string

	Auth AuthConfig
}

// AuthConfig holds the templates used by AuthenticateUser. Both must
// contain the {username} placeholder.
type AuthConfig struct {
	SearchFilter string
	BindDN       string
}

// DefaultConfig returns a Config with the protocol defaults filled in.
func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		ProtocolVersion: DefaultProtocolVersion,
	}
}

type ClientOption func(*Client)

// WithLogger sets the logger used for connection and bind diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialer replaces the go-ldap dialer.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

func NewClient(config Config, opts ...ClientOption) (*Client, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.ProtocolVersion == 0 {
		config.ProtocolVersion = DefaultProtocolVersion
	}

	if strings.TrimSpace(config.Host) == "" {
		return nil, errors.New("Cannot create LDAP client with empty Host")
	}
	if config.BaseDN == "" {
		return nil, errors.New("Cannot create LDAP client with empty BaseDN")
	}
	if config.Port < 1 || config.Port > 65535 {
		return nil, errors.Errorf("Cannot create LDAP client with invalid Port %d", config.Port)
	}
	if config.ProtocolVersion != DefaultProtocolVersion {
		return nil, errors.Errorf("Cannot create LDAP client with ProtocolVersion %d, only LDAPv3 is supported", config.ProtocolVersion)
	}
	if !strings.Contains(config.Auth.BindDN, usernamePlaceholder) {
		return nil, errors.Errorf("Cannot create LDAP client: Auth.BindDN must contain %s", usernamePlaceholder)
	}
	if !strings.Contains(config.Auth.SearchFilter, usernamePlaceholder) {
		return nil, errors.Errorf("Cannot create LDAP client: Auth.SearchFilter must contain %s", usernamePlaceholder)
	}

	c := &Client{
		config: config,
		dialer: goLDAPDialer{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	return c.config
}

// Connect opens a connection to the first reachable host.
func (c *Client) Connect() (*Connection, error) {
	var multiErr error
	for _, host := range strings.Fields(c.config.Host) {
		ldapURL, err := c.hostURL(host)
		if err != nil {
			multiErr = multierror.Append(multiErr, err)
			continue
		}
		conn, err := c.dialLDAP(ldapURL)
		if err != nil {
			c.logFailure("ldap connect failed", err, zap.String("host", ldapURL))
			multiErr = multierror.Append(multiErr, err)
			continue
		}
		c.logger.Debug("ldap connected", zap.String("host", ldapURL))
		return &Connection{conn: conn, client: c, host: ldapURL}, nil
	}
	return nil, multiErr
}

func (c *Client) hostURL(host string) (string, error) {
	if strings.Contains(host, "://") {
		if _, err := url.Parse(host); err != nil {
			return "", errors.Wrapf(err, "invalid ldap url: %s", host)
		}
		return host, nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return "ldap://" + host, nil
	}
	return "ldap://" + net.JoinHostPort(host, strconv.Itoa(c.config.Port)), nil
}

func (c *Client) tlsConfig(serverName string) (*tls.Config, error) {
	tlsConfig := tls.Config{
		InsecureSkipVerify: c.config.Insecure,
		ServerName:         serverName,
	}

	if c.config.CustomCA != "" {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM([]byte(c.config.CustomCA)) {
			return nil, errors.New("error adding custom CA, check format")
		}
		tlsConfig.RootCAs = caCertPool
	}
	return &tlsConfig, nil
}

func (c *Client) dialLDAP(ldapURL string) (Backend, error) {
	u, err := url.Parse(ldapURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid ldap url: %s", ldapURL)
	}
	tlsConfig, err := c.tlsConfig(u.Hostname())
	if err != nil {
		return nil, errors.Wrap(err, "cannot create tls config")
	}

	conn, err := c.dialer.Dial(ldapURL, tlsConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot dial ldap url: %s", ldapURL)
	}

	if c.config.Timeout > 0 {
		conn.SetTimeout(c.config.Timeout)
	}

	if c.config.StartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			_ = conn.Close()
			return nil, errors.Wrapf(err, "cannot start tls for ldap url: %s", ldapURL)
		}
	}

	return conn, nil
}

// logFailure reports a client error unless HideErrors is set.
func (c *Client) logFailure(msg string, err error, fields ...zap.Field) {
	if c.config.HideErrors {
		return
	}
	c.logger.Warn(msg, append(fields, zap.Error(err))...)
}

// Close releases the connection. Calling it twice is harmless.
func (conn *Connection) Close() error {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()

	if conn.conn == nil {
		return nil
	}
	err := conn.conn.Close()
	conn.conn = nil
	conn.state = Unbound
	return err
}

// Bound reports who the connection is bound as.
func (conn *Connection) Bound() BindState {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	return conn.state
}

// GetBindDN renders the configured bind DN template for username.
func (conn *Connection) GetBindDN(username string) string {
	return expandTemplate(conn.client.config.Auth.BindDN, ldap.EscapeDN(username))
}

// GetRelativeDN renders the configured search filter template for username.
func (conn *Connection) GetRelativeDN(username string) string {
	return expandTemplate(conn.client.config.Auth.SearchFilter, ldap.EscapeFilter(username))
}

// BindUsingCredentials binds as dn. A failure whose result code is 0 leaves
// the connection unbound without returning an error.
func (conn *Connection) BindUsingCredentials(dn, password string) error {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	return conn.bind(dn, password, BoundUser)
}

// BindUsingServiceAccount binds with CommonBindDN and CommonBindPassword.
func (conn *Connection) BindUsingServiceAccount() error {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	return conn.bind(conn.client.config.CommonBindDN, conn.client.config.CommonBindPassword, BoundServiceAccount)
}

func (conn *Connection) bind(dn, password string, as BindState) error {
	if conn.conn == nil {
		return usageError("bind", errors.New("connection is closed"))
	}
	err := conn.conn.Bind(dn, password)
	if err == nil {
		conn.state = as
		return nil
	}
	conn.state = Unbound
	conn.client.logFailure("ldap bind failed", err, zap.String("host", conn.host), zap.String("dn", dn))
	return translateError("bind", dn, err, conn.client.config.HideErrors)
}

// AuthenticateUser binds as username and reads its entry. It returns
// ErrNotFound both for unknown users and for rejected binds.
func (conn *Connection) AuthenticateUser(username, password string) (*Result, error) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()

	base, suffix := SplitRoleSuffix(username)
	bindDN := conn.GetBindDN(base)

	if err := conn.bind(bindDN, password, BoundUser); err != nil {
		if IsDirectoryError(err) {
			return nil, &maskedError{cause: err}
		}
		return nil, err
	}

	result, err := conn.find(SearchTypeRead, FindOptions{
		BaseDN:     bindDN,
		Filter:     conn.GetRelativeDN(base),
		Attributes: []string{"cn", "sn", "mail"},
	})
	if err != nil {
		return nil, err
	}
	if result.Count == 0 {
		return nil, ErrNotFound
	}

	result.RoleSuffix = suffix
	return result, nil
}
