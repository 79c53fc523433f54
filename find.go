package ldap

import (
	"math"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

type SearchType string

const (
	// SearchTypeSearch looks through the whole subtree below BaseDN.
	SearchTypeSearch SearchType = "search"
	// SearchTypeRead only looks at the BaseDN entry itself.
	SearchTypeRead SearchType = "read"
)

type FindOptions struct {
	Filter string
	// Attributes to return; empty means all.
	Attributes []string
	// BaseDN defaults to Config.BaseDN.
	BaseDN string
}

// Find runs a search or read on a bound connection.
func (conn *Connection) Find(searchType SearchType, opts FindOptions) (*Result, error) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	return conn.find(searchType, opts)
}

func (conn *Connection) find(searchType SearchType, opts FindOptions) (*Result, error) {
	if conn.conn == nil || conn.state == Unbound {
		return nil, usageError("find", ErrNotBound)
	}
	if opts.Filter == "" {
		return nil, usageError("find", ErrMissingFilter)
	}
	if opts.BaseDN == "" {
		opts.BaseDN = conn.client.config.BaseDN
	}

	var scope int
	switch searchType {
	case SearchTypeSearch:
		scope = ldap.ScopeWholeSubtree
	case SearchTypeRead:
		scope = ldap.ScopeBaseObject
	default:
		return nil, usageError("find", ErrUnknownSearchType)
	}

	sizeLimit := math.MaxInt32
	if searchType == SearchTypeRead {
		sizeLimit = 1
	}

	sr, err := conn.conn.Search(ldap.NewSearchRequest(
		opts.BaseDN,
		scope,
		ldap.NeverDerefAliases,
		sizeLimit,
		0,
		false,
		opts.Filter,
		opts.Attributes,
		nil,
	))
	if err != nil {
		conn.client.logFailure("ldap "+string(searchType)+" failed", err,
			zap.String("host", conn.host), zap.String("dn", opts.BaseDN))
		if derr := translateError(string(searchType), opts.BaseDN, err, conn.client.config.HideErrors); derr != nil {
			return nil, derr
		}
	}
	return newResult(sr), nil
}
