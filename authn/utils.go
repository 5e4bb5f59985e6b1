// Package authn issues and verifies the JWT bearer tokens the gateway
// requires on every request. A registered account carries per-user and
// per-container ACLs, and a signed token embeds them so the gateway can
// authorize a request without a round-trip to the account store.
/*
 * Copyright (c) 2018-2022, NVIDIA CORPORATION. All rights reserved.
 */
package authn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/cmn/jsp"
)

// AccessAttrs is a bitmask of the permissions an ACL entry grants.
type AccessAttrs uint64

const (
	AccessRead AccessAttrs = 1 << iota
	AccessWrite
	AccessDelete
	AccessAdmin
)

func (a AccessAttrs) Has(bit AccessAttrs) bool { return a&bit == bit }

type (
	// Account is a registered (ns, account) pair able to authenticate.
	Account struct {
		ID       string           `json:"id"`
		Password string           `json:"pass,omitempty"`
		IsAdmin  bool             `json:"admin"`
		Users    []*UserACL       `json:"users"`
		Cntrs    []*ContainerACL  `json:"containers"`
	}
	// UserACL grants default permissions across every container owned by
	// one user (ns/account/user).
	UserACL struct {
		User   string      `json:"user"`
		Access AccessAttrs `json:"perm"`
	}
	// ContainerACL overrides the user-level default for one specific
	// container reference (ContainerRef from cmn/oiourl).
	ContainerACL struct {
		ContainerRef string      `json:"ref"`
		Access       AccessAttrs `json:"perm"`
	}
	// Token is what DecryptToken hands back once a JWT has verified.
	Token struct {
		AccountID string          `json:"account"`
		Expires   time.Time       `json:"expires"`
		IsAdmin   bool            `json:"admin"`
		Users     []*UserACL      `json:"users,omitempty"`
		Cntrs     []*ContainerACL `json:"containers,omitempty"`
	}
	LoginMsg struct {
		Password  string         `json:"password"`
		ExpiresIn *time.Duration `json:"expires_in"`
	}
	TokenMsg struct {
		Token string `json:"token"`
	}
)

var (
	_ jsp.Opts = (*TokenMsg)(nil)

	tokenJspOpts = jsp.CCSign()
)

func (*TokenMsg) JspOpts() jsp.Options { return tokenJspOpts }

var (
	ErrNoPermissions = errors.New("authn: insufficient permissions")
	ErrInvalidToken  = errors.New("authn: invalid token")
	ErrNoToken       = errors.New("authn: token required")
	ErrTokenExpired  = errors.New("authn: token expired")
)

func (a *Account) aclForUser(user string) (AccessAttrs, bool) {
	for _, u := range a.Users {
		if u.User == user {
			return u.Access, true
		}
	}
	return 0, false
}

func (a *Account) aclForContainer(ref string) (AccessAttrs, bool) {
	for _, c := range a.Cntrs {
		if c.ContainerRef == ref {
			return c.Access, true
		}
	}
	return 0, false
}

// IssueToken signs a bearer token for account a, embedding its user-level
// and container-specific ACLs as they are; the container entry's
// precedence is applied later, by Token.CheckPermissions. secret is the
// gateway's GatewayConfig.JWTSigningKey.
func IssueToken(a *Account, ttl time.Duration, secret string) (string, error) {
	expires := time.Now().Add(ttl)
	usersJSON, err := json.Marshal(a.Users)
	if err != nil {
		return "", fmt.Errorf("authn: encode user acls: %w", err)
	}
	cntrsJSON, err := json.Marshal(a.Cntrs)
	if err != nil {
		return "", fmt.Errorf("authn: encode container acls: %w", err)
	}
	claims := jwt.MapClaims{
		"account":    a.ID,
		"exp":        expires.Unix(),
		"admin":      a.IsAdmin,
		"users":      string(usersJSON),
		"containers": string(cntrsJSON),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func DecryptToken(tokenStr, secret string) (*Token, error) {
	parsed, err := jwt.Parse(tokenStr, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authn: unexpected signing method %v", tk.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	accountID, _ := claims["account"].(string)
	isAdmin, _ := claims["admin"].(bool)
	tk := &Token{AccountID: accountID, IsAdmin: isAdmin}
	if expUnix, ok := claims["exp"].(float64); ok {
		tk.Expires = time.Unix(int64(expUnix), 0)
	}
	if usersJSON, ok := claims["users"].(string); ok && usersJSON != "" {
		if err := json.Unmarshal([]byte(usersJSON), &tk.Users); err != nil {
			return nil, fmt.Errorf("authn: decode user acls: %w", err)
		}
	}
	if cntrsJSON, ok := claims["containers"].(string); ok && cntrsJSON != "" {
		if err := json.Unmarshal([]byte(cntrsJSON), &tk.Cntrs); err != nil {
			return nil, fmt.Errorf("authn: decode container acls: %w", err)
		}
	}
	return tk, nil
}

// CheckPermissions enforces the two-level ACL: a container-specific entry
// overrides the user-wide default, the same precedence a per-bucket ACL
// takes over a cluster-wide one.
func (tk *Token) CheckPermissions(user, containerRef string, need AccessAttrs) error {
	if tk.IsAdmin {
		return nil
	}
	for _, c := range tk.Cntrs {
		if c.ContainerRef == containerRef {
			if c.Access.Has(need) {
				return nil
			}
			return ErrNoPermissions
		}
	}
	for _, u := range tk.Users {
		if u.User == user {
			if u.Access.Has(need) {
				return nil
			}
			return ErrNoPermissions
		}
	}
	return ErrNoPermissions
}

func LoadToken() string {
	var token TokenMsg
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ""
	}
	tokenPath := filepath.Join(home, ".config/oio-sds", cmn.TokenFname)
	if _, err := jsp.LoadMeta(tokenPath, &token); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	return token.Token
}

func SaveToken(tokenStr string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, ".config/oio-sds")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return jsp.SaveMeta(filepath.Join(dir, cmn.TokenFname), &TokenMsg{Token: tokenStr})
}
