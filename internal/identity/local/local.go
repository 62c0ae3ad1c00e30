// Package local is an identity provider backed by the document store:
// bcrypt password hashes, HS256 id tokens and revocable sessions.
package local

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/identity"
	"spendly/internal/log"
)

const (
	accountsCollection    = "accounts"
	emailIndexCollection  = "accountEmails"
	sessionsCollection    = "sessions"
	actionCodesCollection = "actionCodes"

	maxFailedSignIns  = 5
	failureWindow     = 15 * time.Minute
	recentLoginWindow = 5 * time.Minute
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Options configures the provider. Secret is required.
type Options struct {
	Secret        []byte
	Issuer        string
	SessionTTL    time.Duration
	ActionCodeTTL time.Duration
	BcryptCost    int
	Mailer        Mailer
	Clock         func() time.Time
	Logger        *log.Logger
}

type (
	account struct {
		UID           string `json:"id"`
		Email         string `json:"email"`
		PasswordHash  string `json:"passwordHash"`
		DisplayName   string `json:"displayName"`
		PhotoURL      string `json:"photoURL"`
		EmailVerified bool   `json:"emailVerified"`
		Disabled      bool   `json:"disabled"`
	}

	session struct {
		ID      string `json:"id"`
		UID     string `json:"uid"`
		AuthAt  string `json:"authAt"`
		Revoked bool   `json:"revoked"`
	}

	actionCode struct {
		Code      string     `json:"id"`
		UID       string     `json:"uid"`
		Email     string     `json:"email"`
		Kind      ActionKind `json:"kind"`
		ExpiresAt string     `json:"expiresAt"`
	}
)

func (a account) user() core.User {
	return core.User{
		UID:           a.UID,
		DisplayName:   a.DisplayName,
		Email:         a.Email,
		PhotoURL:      a.PhotoURL,
		EmailVerified: a.EmailVerified,
	}
}

// Provider implements identity.Provider.
type Provider struct {
	store  docstore.Store
	opts   Options
	logger *log.Logger

	// accountMu serializes writes touching the email index.
	accountMu sync.Mutex

	failMu   sync.Mutex
	failures map[string][]time.Time

	listenMu  sync.Mutex
	listeners map[uint64]*listener
	nextID    uint64
}

var _ identity.Provider = (*Provider)(nil)

func New(store docstore.Store, opts Options) (*Provider, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("identity: token secret is required")
	}
	if opts.Issuer == "" {
		opts.Issuer = "spendly"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.ActionCodeTTL <= 0 {
		opts.ActionCodeTTL = time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	logger := opts.Logger.WithComponent(log.ComponentIdentity)
	if opts.Mailer == nil {
		opts.Mailer = LogMailer{Logger: logger}
	}
	return &Provider{
		store:     store,
		opts:      opts,
		logger:    logger,
		failures:  make(map[string][]time.Time),
		listeners: make(map[uint64]*listener),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if !emailPattern.MatchString(email) {
		return identity.NewError(identity.CodeInvalidEmail, "invalid email address")
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return identity.NewError(identity.CodeWeakPassword, fmt.Sprintf("password must have at least %d characters", minPasswordLength))
	}
	return nil
}

func (p *Provider) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), p.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (identity.Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return identity.Session{}, err
	}

	p.accountMu.Lock()
	defer p.accountMu.Unlock()

	idx, err := p.store.Get(ctx, emailIndexCollection, email)
	if err != nil {
		return identity.Session{}, storeError(err)
	}
	if idx.Exists {
		return identity.Session{}, identity.NewError(identity.CodeEmailAlreadyInUse, "email already in use")
	}

	hash, err := p.hash(password)
	if err != nil {
		return identity.Session{}, err
	}

	acct := account{
		UID:          strings.ReplaceAll(uuid.NewString(), "-", "")[:28],
		Email:        email,
		PasswordHash: hash,
	}
	if err := p.store.Set(ctx, accountsCollection, acct.UID, docstore.Data{
		"email":         acct.Email,
		"passwordHash":  acct.PasswordHash,
		"displayName":   "",
		"photoURL":      "",
		"emailVerified": false,
		"disabled":      false,
		"createdAt":     docstore.ServerTimestamp,
	}); err != nil {
		return identity.Session{}, storeError(err)
	}
	if err := p.store.Set(ctx, emailIndexCollection, email, docstore.Data{"uid": acct.UID}); err != nil {
		return identity.Session{}, storeError(err)
	}

	p.logger.InfoContext(ctx, "Account created", log.FieldUserID, acct.UID)
	return p.startSession(ctx, acct)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return identity.Session{}, identity.NewError(identity.CodeInvalidEmail, "invalid email address")
	}
	if p.throttled(email) {
		p.logger.WarnContext(ctx, "Sign-in throttled", "email", email)
		return identity.Session{}, identity.NewError(identity.CodeTooManyRequests, "too many failed attempts")
	}

	acct, found, err := p.accountByEmail(ctx, email)
	if err != nil {
		return identity.Session{}, err
	}
	if !found {
		p.recordFailure(email)
		return identity.Session{}, identity.NewError(identity.CodeUserNotFound, "no account for this email")
	}
	if acct.Disabled {
		return identity.Session{}, identity.NewError(identity.CodeUserDisabled, "account disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		p.recordFailure(email)
		return identity.Session{}, identity.NewError(identity.CodeWrongPassword, "wrong password")
	}

	p.clearFailures(email)
	return p.startSession(ctx, acct)
}

func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parseToken(token)
	if err != nil {
		return nil
	}
	if err := p.store.Update(ctx, sessionsCollection, claims.ID, docstore.Data{"revoked": true}); err != nil && !docstore.IsCode(err, docstore.CodeNotFound) {
		return storeError(err)
	}
	p.notify(claims.Subject)
	return nil
}

func (p *Provider) CurrentUser(ctx context.Context, token string) (*core.User, error) {
	if token == "" {
		return nil, nil
	}
	_, acct, err := p.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	u := acct.user()
	return &u, nil
}

func (p *Provider) UpdateProfile(ctx context.Context, token string, displayName, photoURL *string) error {
	_, acct, err := p.resolve(ctx, token)
	if err != nil {
		return err
	}
	patch := docstore.Data{}
	if displayName != nil {
		patch["displayName"] = *displayName
	}
	if photoURL != nil {
		patch["photoURL"] = *photoURL
	}
	if len(patch) == 0 {
		return nil
	}
	if err := p.store.Update(ctx, accountsCollection, acct.UID, patch); err != nil {
		return storeError(err)
	}
	p.notify(acct.UID)
	return nil
}

func (p *Provider) UpdateEmail(ctx context.Context, token, email string) error {
	sess, acct, err := p.resolve(ctx, token)
	if err != nil {
		return err
	}
	if err := p.requireRecentLogin(sess); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return identity.NewError(identity.CodeInvalidEmail, "invalid email address")
	}
	if email == acct.Email {
		return nil
	}

	p.accountMu.Lock()
	defer p.accountMu.Unlock()

	idx, err := p.store.Get(ctx, emailIndexCollection, email)
	if err != nil {
		return storeError(err)
	}
	if idx.Exists {
		return identity.NewError(identity.CodeEmailAlreadyInUse, "email already in use")
	}
	if err := p.store.Set(ctx, emailIndexCollection, email, docstore.Data{"uid": acct.UID}); err != nil {
		return storeError(err)
	}
	if err := p.store.Delete(ctx, emailIndexCollection, acct.Email); err != nil {
		return storeError(err)
	}
	if err := p.store.Update(ctx, accountsCollection, acct.UID, docstore.Data{"email": email, "emailVerified": false}); err != nil {
		return storeError(err)
	}
	p.notify(acct.UID)
	return nil
}

func (p *Provider) UpdatePassword(ctx context.Context, token, password string) error {
	sess, acct, err := p.resolve(ctx, token)
	if err != nil {
		return err
	}
	if err := p.requireRecentLogin(sess); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := p.hash(password)
	if err != nil {
		return err
	}
	if err := p.store.Update(ctx, accountsCollection, acct.UID, docstore.Data{"passwordHash": hash}); err != nil {
		return storeError(err)
	}
	return nil
}

func (p *Provider) Reauthenticate(ctx context.Context, token, password string) error {
	sess, acct, err := p.resolve(ctx, token)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		p.recordFailure(acct.Email)
		return identity.NewError(identity.CodeWrongPassword, "wrong password")
	}
	now := p.opts.Clock()
	if err := p.store.Update(ctx, sessionsCollection, sess.ID, docstore.Data{"authAt": docstore.FormatTimestamp(now)}); err != nil {
		return storeError(err)
	}
	return nil
}

func (p *Provider) DeleteAccount(ctx context.Context, token string) error {
	sess, acct, err := p.resolve(ctx, token)
	if err != nil {
		return err
	}
	if err := p.requireRecentLogin(sess); err != nil {
		return err
	}

	p.accountMu.Lock()
	defer p.accountMu.Unlock()

	if err := p.store.Delete(ctx, accountsCollection, acct.UID); err != nil {
		return storeError(err)
	}
	if err := p.store.Delete(ctx, emailIndexCollection, acct.Email); err != nil {
		return storeError(err)
	}
	sessions, err := p.store.Query(ctx, docstore.From(sessionsCollection).WhereEq("uid", acct.UID))
	if err != nil {
		return storeError(err)
	}
	for _, s := range sessions {
		if err := p.store.Update(ctx, sessionsCollection, s.ID, docstore.Data{"revoked": true}); err != nil {
			return storeError(err)
		}
	}

	p.logger.InfoContext(ctx, "Account deleted", log.FieldUserID, acct.UID)
	p.notify(acct.UID)
	return nil
}

func (p *Provider) SendEmailVerification(ctx context.Context, token string) error {
	_, acct, err := p.resolve(ctx, token)
	if err != nil {
		return err
	}
	return p.sendActionCode(ctx, ActionVerifyEmail, acct)
}

func (p *Provider) VerifyEmail(ctx context.Context, code string) error {
	ac, err := p.consumeActionCode(ctx, code, ActionVerifyEmail)
	if err != nil {
		return err
	}
	if err := p.store.Update(ctx, accountsCollection, ac.UID, docstore.Data{"emailVerified": true}); err != nil {
		if docstore.IsCode(err, docstore.CodeNotFound) {
			return identity.NewError(identity.CodeUserNotFound, "account no longer exists")
		}
		return storeError(err)
	}
	p.notify(ac.UID)
	return nil
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return identity.NewError(identity.CodeInvalidEmail, "invalid email address")
	}
	acct, found, err := p.accountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !found {
		return identity.NewError(identity.CodeUserNotFound, "no account for this email")
	}
	return p.sendActionCode(ctx, ActionResetPassword, acct)
}

func (p *Provider) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	ac, err := p.consumeActionCode(ctx, code, ActionResetPassword)
	if err != nil {
		return err
	}
	hash, err := p.hash(newPassword)
	if err != nil {
		return err
	}
	if err := p.store.Update(ctx, accountsCollection, ac.UID, docstore.Data{"passwordHash": hash}); err != nil {
		if docstore.IsCode(err, docstore.CodeNotFound) {
			return identity.NewError(identity.CodeUserNotFound, "account no longer exists")
		}
		return storeError(err)
	}
	p.clearFailures(ac.Email)
	return nil
}

func (p *Provider) startSession(ctx context.Context, acct account) (identity.Session, error) {
	now := p.opts.Clock()
	sid := uuid.NewString()
	if err := p.store.Set(ctx, sessionsCollection, sid, docstore.Data{
		"uid":       acct.UID,
		"authAt":    docstore.FormatTimestamp(now),
		"revoked":   false,
		"createdAt": docstore.ServerTimestamp,
	}); err != nil {
		return identity.Session{}, storeError(err)
	}
	token, err := p.issueToken(acct.UID, sid, acct.Email, now)
	if err != nil {
		return identity.Session{}, &identity.Error{Code: identity.CodeInternal, Message: "sign token", Err: err}
	}
	return identity.Session{Token: token, User: acct.user()}, nil
}

func (p *Provider) resolve(ctx context.Context, token string) (session, account, error) {
	claims, err := p.parseToken(token)
	if err != nil {
		return session{}, account{}, err
	}

	snap, err := p.store.Get(ctx, sessionsCollection, claims.ID)
	if err != nil {
		return session{}, account{}, storeError(err)
	}
	var sess session
	if snap.Exists {
		if err := snap.Decode(&sess); err != nil {
			return session{}, account{}, storeError(err)
		}
	}
	if !snap.Exists || sess.Revoked || sess.UID != claims.Subject {
		return session{}, account{}, identity.NewError(identity.CodeUserTokenExpired, "session is no longer valid")
	}

	acct, found, err := p.accountByID(ctx, claims.Subject)
	if err != nil {
		return session{}, account{}, err
	}
	if !found {
		return session{}, account{}, identity.NewError(identity.CodeUserNotFound, "account no longer exists")
	}
	if acct.Disabled {
		return session{}, account{}, identity.NewError(identity.CodeUserDisabled, "account disabled")
	}
	return sess, acct, nil
}

func (p *Provider) requireRecentLogin(sess session) error {
	authAt, err := time.Parse(docstore.TimestampLayout, sess.AuthAt)
	if err != nil || p.opts.Clock().Sub(authAt) > recentLoginWindow {
		return identity.NewError(identity.CodeRequiresRecentLogin, "this operation requires a recent sign-in")
	}
	return nil
}

func (p *Provider) accountByID(ctx context.Context, uid string) (account, bool, error) {
	snap, err := p.store.Get(ctx, accountsCollection, uid)
	if err != nil {
		return account{}, false, storeError(err)
	}
	if !snap.Exists {
		return account{}, false, nil
	}
	var acct account
	if err := snap.Decode(&acct); err != nil {
		return account{}, false, storeError(err)
	}
	return acct, true, nil
}

func (p *Provider) accountByEmail(ctx context.Context, email string) (account, bool, error) {
	idx, err := p.store.Get(ctx, emailIndexCollection, email)
	if err != nil {
		return account{}, false, storeError(err)
	}
	if !idx.Exists {
		return account{}, false, nil
	}
	uid, _ := idx.Data["uid"].(string)
	return p.accountByID(ctx, uid)
}

func (p *Provider) sendActionCode(ctx context.Context, kind ActionKind, acct account) error {
	code := uuid.NewString()
	expires := p.opts.Clock().Add(p.opts.ActionCodeTTL)
	if err := p.store.Set(ctx, actionCodesCollection, code, docstore.Data{
		"uid":       acct.UID,
		"email":     acct.Email,
		"kind":      string(kind),
		"expiresAt": docstore.FormatTimestamp(expires),
	}); err != nil {
		return storeError(err)
	}
	if err := p.opts.Mailer.Send(ctx, Message{To: acct.Email, Kind: kind, Code: code}); err != nil {
		return &identity.Error{Code: identity.CodeNetworkRequestFail, Message: "could not send email", Err: err}
	}
	return nil
}

// consumeActionCode validates and deletes a single-use code.
func (p *Provider) consumeActionCode(ctx context.Context, code string, kind ActionKind) (actionCode, error) {
	if code == "" {
		return actionCode{}, identity.NewError(identity.CodeInvalidActionCode, "missing action code")
	}
	snap, err := p.store.Get(ctx, actionCodesCollection, code)
	if err != nil {
		return actionCode{}, storeError(err)
	}
	var ac actionCode
	if snap.Exists {
		if err := snap.Decode(&ac); err != nil {
			return actionCode{}, storeError(err)
		}
	}
	if !snap.Exists || ac.Kind != kind {
		return actionCode{}, identity.NewError(identity.CodeInvalidActionCode, "invalid action code")
	}
	if err := p.store.Delete(ctx, actionCodesCollection, code); err != nil {
		return actionCode{}, storeError(err)
	}
	expires, err := time.Parse(docstore.TimestampLayout, ac.ExpiresAt)
	if err != nil || p.opts.Clock().After(expires) {
		return actionCode{}, identity.NewError(identity.CodeExpiredActionCode, "action code expired")
	}
	return ac, nil
}

func (p *Provider) throttled(email string) bool {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	cutoff := p.opts.Clock().Add(-failureWindow)
	recent := p.failures[email][:0]
	for _, t := range p.failures[email] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	p.failures[email] = recent
	return len(recent) >= maxFailedSignIns
}

func (p *Provider) recordFailure(email string) {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	p.failures[email] = append(p.failures[email], p.opts.Clock())
}

func (p *Provider) clearFailures(email string) {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	delete(p.failures, email)
}

func storeError(err error) error {
	var ie *identity.Error
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || docstore.IsCode(err, docstore.CodeUnavailable) {
		return &identity.Error{Code: identity.CodeNetworkRequestFail, Message: "identity store unreachable", Err: err}
	}
	return &identity.Error{Code: identity.CodeInternal, Message: "identity store failure", Err: err}
}
