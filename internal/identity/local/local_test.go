package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"spendly/internal/core"
	"spendly/internal/docstore/memory"
	"spendly/internal/identity"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []Message
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type ProviderSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	mailer *captureMailer
	p      *Provider
}

func (s *ProviderSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.mailer = &captureMailer{}
	p, err := New(memory.New(), Options{
		Secret:     []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
		Mailer:     s.mailer,
		Clock:      func() time.Time { return s.now },
	})
	s.Require().NoError(err)
	s.p = p
}

func (s *ProviderSuite) advance(d time.Duration) { s.now = s.now.Add(d) }

func (s *ProviderSuite) TestSignUpAndSignIn() {
	sess, err := s.p.SignUp(s.ctx, " Ana@Example.com ", "secret1")
	s.Require().NoError(err)
	s.NotEmpty(sess.Token)
	s.Equal("ana@example.com", sess.User.Email)

	u, err := s.p.CurrentUser(s.ctx, sess.Token)
	s.Require().NoError(err)
	s.Equal(sess.User.UID, u.UID)

	_, err = s.p.SignUp(s.ctx, "ana@example.com", "another1")
	s.Equal(identity.CodeEmailAlreadyInUse, identity.CodeOf(err))

	in, err := s.p.SignIn(s.ctx, "ANA@example.com", "secret1")
	s.Require().NoError(err)
	s.Equal(sess.User.UID, in.User.UID)
}

func (s *ProviderSuite) TestSignUpValidation() {
	_, err := s.p.SignUp(s.ctx, "not-an-email", "secret1")
	s.Equal(identity.CodeInvalidEmail, identity.CodeOf(err))
	_, err = s.p.SignUp(s.ctx, "a@b.co", "123")
	s.Equal(identity.CodeWeakPassword, identity.CodeOf(err))
}

func (s *ProviderSuite) TestSignInErrorsAndThrottle() {
	_, err := s.p.SignUp(s.ctx, "bob@example.com", "secret1")
	s.Require().NoError(err)

	_, err = s.p.SignIn(s.ctx, "nobody@example.com", "secret1")
	s.Equal(identity.CodeUserNotFound, identity.CodeOf(err))

	for i := 0; i < maxFailedSignIns; i++ {
		_, err = s.p.SignIn(s.ctx, "bob@example.com", "wrong")
		s.Equal(identity.CodeWrongPassword, identity.CodeOf(err))
	}
	_, err = s.p.SignIn(s.ctx, "bob@example.com", "secret1")
	s.Equal(identity.CodeTooManyRequests, identity.CodeOf(err))

	s.advance(failureWindow + time.Second)
	_, err = s.p.SignIn(s.ctx, "bob@example.com", "secret1")
	s.NoError(err)
}

func (s *ProviderSuite) TestSignOutRevokesToken() {
	sess, err := s.p.SignUp(s.ctx, "c@example.com", "secret1")
	s.Require().NoError(err)
	s.Require().NoError(s.p.SignOut(s.ctx, sess.Token))

	_, err = s.p.CurrentUser(s.ctx, sess.Token)
	s.Equal(identity.CodeUserTokenExpired, identity.CodeOf(err))

	// signing out twice or with garbage is harmless
	s.NoError(s.p.SignOut(s.ctx, sess.Token))
	s.NoError(s.p.SignOut(s.ctx, "garbage"))

	u, err := s.p.CurrentUser(s.ctx, "")
	s.NoError(err)
	s.Nil(u)
}

func (s *ProviderSuite) TestTokenExpiry() {
	sess, err := s.p.SignUp(s.ctx, "d@example.com", "secret1")
	s.Require().NoError(err)
	s.advance(8 * 24 * time.Hour)
	_, err = s.p.CurrentUser(s.ctx, sess.Token)
	s.Equal(identity.CodeIDTokenExpired, identity.CodeOf(err))
}

func (s *ProviderSuite) TestSensitiveOperationsNeedRecentLogin() {
	sess, err := s.p.SignUp(s.ctx, "e@example.com", "secret1")
	s.Require().NoError(err)

	s.advance(recentLoginWindow + time.Minute)
	err = s.p.UpdatePassword(s.ctx, sess.Token, "newsecret")
	s.Equal(identity.CodeRequiresRecentLogin, identity.CodeOf(err))

	err = s.p.Reauthenticate(s.ctx, sess.Token, "wrong")
	s.Equal(identity.CodeWrongPassword, identity.CodeOf(err))
	s.Require().NoError(s.p.Reauthenticate(s.ctx, sess.Token, "secret1"))

	s.Require().NoError(s.p.UpdatePassword(s.ctx, sess.Token, "newsecret"))
	_, err = s.p.SignIn(s.ctx, "e@example.com", "newsecret")
	s.NoError(err)
}

func (s *ProviderSuite) TestUpdateEmailAndProfile() {
	a, err := s.p.SignUp(s.ctx, "f@example.com", "secret1")
	s.Require().NoError(err)
	_, err = s.p.SignUp(s.ctx, "taken@example.com", "secret1")
	s.Require().NoError(err)

	err = s.p.UpdateEmail(s.ctx, a.Token, "taken@example.com")
	s.Equal(identity.CodeEmailAlreadyInUse, identity.CodeOf(err))

	s.Require().NoError(s.p.UpdateEmail(s.ctx, a.Token, "new@example.com"))
	_, err = s.p.SignIn(s.ctx, "new@example.com", "secret1")
	s.NoError(err)
	_, err = s.p.SignIn(s.ctx, "f@example.com", "secret1")
	s.Equal(identity.CodeUserNotFound, identity.CodeOf(err))

	name := "Fede"
	s.Require().NoError(s.p.UpdateProfile(s.ctx, a.Token, &name, nil))
	u, err := s.p.CurrentUser(s.ctx, a.Token)
	s.Require().NoError(err)
	s.Equal("Fede", u.DisplayName)
	s.Equal("new@example.com", u.Email)
}

func (s *ProviderSuite) TestEmailVerification() {
	sess, err := s.p.SignUp(s.ctx, "g@example.com", "secret1")
	s.Require().NoError(err)
	s.Require().NoError(s.p.SendEmailVerification(s.ctx, sess.Token))

	msg := s.mailer.last()
	s.Equal(ActionVerifyEmail, msg.Kind)
	s.Equal("g@example.com", msg.To)

	err = s.p.ConfirmPasswordReset(s.ctx, msg.Code, "whatever1")
	s.Equal(identity.CodeInvalidActionCode, identity.CodeOf(err), "kind mismatch")

	s.Require().NoError(s.p.SendEmailVerification(s.ctx, sess.Token))
	msg = s.mailer.last()
	s.Require().NoError(s.p.VerifyEmail(s.ctx, msg.Code))
	u, _ := s.p.CurrentUser(s.ctx, sess.Token)
	s.True(u.EmailVerified)

	err = s.p.VerifyEmail(s.ctx, msg.Code)
	s.Equal(identity.CodeInvalidActionCode, identity.CodeOf(err), "codes are single-use")
}

func (s *ProviderSuite) TestPasswordReset() {
	_, err := s.p.SignUp(s.ctx, "h@example.com", "secret1")
	s.Require().NoError(err)

	err = s.p.SendPasswordReset(s.ctx, "missing@example.com")
	s.Equal(identity.CodeUserNotFound, identity.CodeOf(err))

	s.Require().NoError(s.p.SendPasswordReset(s.ctx, "h@example.com"))
	code := s.mailer.last().Code

	s.advance(2 * time.Hour)
	err = s.p.ConfirmPasswordReset(s.ctx, code, "brandnew1")
	s.Equal(identity.CodeExpiredActionCode, identity.CodeOf(err))

	s.Require().NoError(s.p.SendPasswordReset(s.ctx, "h@example.com"))
	s.Require().NoError(s.p.ConfirmPasswordReset(s.ctx, s.mailer.last().Code, "brandnew1"))
	_, err = s.p.SignIn(s.ctx, "h@example.com", "brandnew1")
	s.NoError(err)
}

func (s *ProviderSuite) TestDeleteAccount() {
	sess, err := s.p.SignUp(s.ctx, "i@example.com", "secret1")
	s.Require().NoError(err)
	s.Require().NoError(s.p.DeleteAccount(s.ctx, sess.Token))

	_, err = s.p.CurrentUser(s.ctx, sess.Token)
	s.Error(err)
	_, err = s.p.SignIn(s.ctx, "i@example.com", "secret1")
	s.Equal(identity.CodeUserNotFound, identity.CodeOf(err))
	_, err = s.p.SignUp(s.ctx, "i@example.com", "secret1")
	s.NoError(err, "email is free again")
}

func (s *ProviderSuite) TestOnAuthStateChanged() {
	sess, err := s.p.SignUp(s.ctx, "j@example.com", "secret1")
	s.Require().NoError(err)

	got := make(chan *core.User, 10)
	unsub := s.p.OnAuthStateChanged(sess.Token, func(u *core.User) { got <- u })
	defer unsub()

	first := receive(s.T(), got)
	s.Require().NotNil(first)
	s.Equal(sess.User.UID, first.UID)

	name := "Jo"
	s.Require().NoError(s.p.UpdateProfile(s.ctx, sess.Token, &name, nil))
	s.Equal("Jo", receive(s.T(), got).DisplayName)

	s.Require().NoError(s.p.SignOut(s.ctx, sess.Token))
	s.Nil(receive(s.T(), got))

	unsub()
	unsub()
}

func (s *ProviderSuite) TestOnAuthStateChangedInvalidToken() {
	got := make(chan *core.User, 1)
	s.p.OnAuthStateChanged("garbage", func(u *core.User) { got <- u })
	s.Nil(receive(s.T(), got))
}

func receive(t *testing.T, ch <-chan *core.User) *core.User {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no auth state delivered")
		return nil
	}
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(memory.New(), Options{})
	require.Error(t, err)
}

func TestToken_RejectsOtherSecret(t *testing.T) {
	a, err := New(memory.New(), Options{Secret: []byte("a"), BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	b, err := New(memory.New(), Options{Secret: []byte("b"), BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	sess, err := a.SignUp(context.Background(), "k@example.com", "secret1")
	require.NoError(t, err)
	_, err = b.CurrentUser(context.Background(), sess.Token)
	assert.Equal(t, identity.CodeInvalidCredential, identity.CodeOf(err))
}
