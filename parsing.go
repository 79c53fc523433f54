package ldap

import (
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

const usernamePlaceholder = "{username}"

// suffixedUsername matches "first.last+role". The role suffix lets several
// application accounts share one directory identity and mailbox.
var suffixedUsername = regexp.MustCompile(`^([A-Za-z0-9]+\.[A-Za-z0-9]+)\+([A-Za-z0-9]+)$`)

// SplitRoleSuffix separates "john.doe+sales" into "john.doe" and "sales".
// Usernames of any other shape are returned unchanged with an empty suffix.
func SplitRoleSuffix(username string) (base, suffix string) {
	m := suffixedUsername.FindStringSubmatch(username)
	if m == nil {
		return username, ""
	}
	return m[1], m[2]
}

// AddSuffixToMailbox inserts "+suffix" before the '@' of email.
func AddSuffixToMailbox(email, suffix string) (string, error) {
	if strings.Count(email, "@") != 1 {
		return "", &MalformedInputError{Input: email, Reason: "expected exactly one '@'"}
	}
	local, domain, _ := strings.Cut(email, "@")
	if local == "" || domain == "" {
		return "", &MalformedInputError{Input: email, Reason: "empty local part or domain"}
	}
	return local + "+" + suffix + "@" + domain, nil
}

func expandTemplate(template, value string) string {
	return strings.ReplaceAll(template, usernamePlaceholder, value)
}

// ParseCN returns the value of the first CN in dn, or dn itself when it is
// not a DN or carries no CN.
func ParseCN(dn string) string {
	parsedDN, err := ldap.ParseDN(dn)
	if err != nil || len(parsedDN.RDNs) == 0 {
		// Already a CN
		return dn
	}

	for _, rdn := range parsedDN.RDNs {
		for _, rdnAttr := range rdn.Attributes {
			if strings.EqualFold(rdnAttr.Type, "CN") {
				return rdnAttr.Value
			}
		}
	}
	return dn
}

// CN returns the entry's cn attribute, falling back to the CN in its DN.
func (e *Entry) CN() string {
	if e == nil {
		return ""
	}
	if cn := e.First("cn"); cn != "" {
		return cn
	}
	if e.DN == "" {
		return ""
	}
	return ParseCN(e.DN)
}
