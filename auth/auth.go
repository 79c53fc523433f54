// Package auth authenticates users against the directory and optionally
// matches them to an application user record.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	ldap "github.com/xonoko/ldapauth"
	"github.com/xonoko/ldapauth/store"
)

// ErrNotAuthenticated is the only failure a caller sees for bad credentials,
// unknown users, unreachable directories and unmatched application records.
var ErrNotAuthenticated = errors.New("not authenticated")

// Directory is the part of *ldap.Connection the authenticator uses.
type Directory interface {
	AuthenticateUser(username, password string) (*ldap.Result, error)
	Close() error
}

// ConnectFunc opens a directory connection for one authentication attempt.
type ConnectFunc func() (Directory, error)

// FromClient opens connections with c.
func FromClient(c *ldap.Client) ConnectFunc {
	return func() (Directory, error) {
		conn, err := c.Connect()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Callback merges the directory result with the application record found for
// it (nil when none was found). Its return value replaces the record.
type Callback func(ctx context.Context, entry *ldap.Result, record store.Record) (store.Record, error)

type Fields struct {
	// Username is the record field compared with the directory mail.
	Username string
}

type Config struct {
	QueryDatasource bool
	UserModel       string
	Fields          Fields
	Callback        Callback
}

func DefaultConfig() Config {
	return Config{
		QueryDatasource: true,
		UserModel:       "Users",
		Fields:          Fields{Username: "email"},
	}
}

// User is a successfully authenticated user.
type User struct {
	// Entry is the directory result, RoleSuffix included.
	Entry *ldap.Result
	// Record is the application record, nil when the datastore is not queried.
	Record store.Record
	// Email is the directory mail, with the role suffix applied when the
	// datastore was queried.
	Email string
}

// Fields flattens the user into one map: directory attributes first, then
// the application record on top.
func (u *User) Fields() map[string]any {
	fields := map[string]any{}
	if entry := u.Entry.First(); entry != nil {
		fields["dn"] = entry.DN
		for _, a := range entry.Attributes {
			if len(a.Values) == 1 {
				fields[a.Name] = a.Values[0]
			} else {
				fields[a.Name] = a.Values
			}
		}
	}
	if u.Entry != nil && u.Entry.RoleSuffix != "" {
		fields["role_suffix"] = u.Entry.RoleSuffix
	}
	for k, v := range u.Record {
		fields[k] = v
	}
	return fields
}

// Observer is told how each attempt ended.
type Observer interface {
	ObserveAuthentication(outcome Outcome, elapsed time.Duration)
}

type Option func(*Authenticator)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *Authenticator) {
		a.observer = o
	}
}

// Authenticator is safe for concurrent use. Every attempt gets its own
// directory connection, closed before Authenticate returns.
type Authenticator struct {
	connect  ConnectFunc
	finder   store.Finder
	config   Config
	logger   *zap.Logger
	observer Observer
}

func New(connect ConnectFunc, finder store.Finder, config Config, opts ...Option) (*Authenticator, error) {
	if connect == nil {
		return nil, errors.New("auth: a directory connect function is required")
	}
	if config.UserModel == "" {
		config.UserModel = "Users"
	}
	if config.Fields.Username == "" {
		config.Fields.Username = "email"
	}
	if config.QueryDatasource && finder == nil {
		return nil, errors.New("auth: QueryDatasource requires a record finder")
	}

	a := &Authenticator{
		connect: connect,
		finder:  finder,
		config:  config,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate checks the credentials. Failed logins return
// ErrNotAuthenticated; any other error is a caller or configuration fault.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*User, error) {
	start := time.Now()
	user, outcome, err := a.authenticate(ctx, username, password)
	elapsed := time.Since(start)

	if a.observer != nil {
		a.observer.ObserveAuthentication(outcome, elapsed)
	}

	fields := []zap.Field{
		zap.String("username", username),
		zap.Stringer("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	}
	switch outcome {
	case OutcomeSuccess:
		a.logger.Info("authentication succeeded", fields...)
	case OutcomeError:
		a.logger.Error("authentication error", append(fields, zap.Error(err))...)
	default:
		a.logger.Info("authentication failed", fields...)
	}
	return user, err
}

func (a *Authenticator) authenticate(ctx context.Context, username, password string) (*User, Outcome, error) {
	if username == "" || password == "" {
		return nil, OutcomeError, &ldap.UsageError{Op: "authenticate", Err: ldap.ErrEmptyCredentials}
	}

	result, err := a.lookup(username, password)
	if err != nil {
		if ldap.IsUsageError(err) {
			return nil, OutcomeError, err
		}
		outcome := classify(err)
		a.logger.Debug("directory rejected credentials",
			zap.String("username", username), zap.Stringer("outcome", outcome), zap.Error(err))
		return nil, outcome, ErrNotAuthenticated
	}

	mail := result.First().First("mail")
	if mail == "" {
		return nil, OutcomeNotFound, ErrNotAuthenticated
	}

	if !a.config.QueryDatasource {
		return &User{Entry: result, Email: mail}, OutcomeSuccess, nil
	}

	email := mail
	if result.RoleSuffix != "" {
		email, err = ldap.AddSuffixToMailbox(mail, result.RoleSuffix)
		if err != nil {
			return nil, OutcomeError, errors.Wrap(err, "apply role suffix")
		}
	}

	record, err := a.finder.FindByField(ctx, a.config.UserModel, a.config.Fields.Username, email)
	if err != nil {
		return nil, OutcomeError, errors.Wrapf(err, "find %s by %s", a.config.UserModel, a.config.Fields.Username)
	}

	if a.config.Callback != nil {
		record, err = a.config.Callback(ctx, result, record)
		if err != nil {
			return nil, OutcomeError, errors.Wrap(err, "user callback")
		}
	}

	if len(record) == 0 {
		return nil, OutcomeNotFound, ErrNotAuthenticated
	}
	user := make(store.Record, len(record)+1)
	for k, v := range record {
		user[k] = v
	}
	user["ldap_cn"] = result.First().CN()

	return &User{Entry: result, Record: user, Email: email}, OutcomeSuccess, nil
}

// lookup runs AuthenticateUser on a fresh connection.
func (a *Authenticator) lookup(username, password string) (*ldap.Result, error) {
	dir, err := a.connect()
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	defer func() {
		if err := dir.Close(); err != nil {
			a.logger.Debug("closing directory connection", zap.Error(err))
		}
	}()
	return dir.AuthenticateUser(username, password)
}
