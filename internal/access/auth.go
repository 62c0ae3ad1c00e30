package access

import (
	"context"
	"strings"

	"spendly/internal/core"
	"spendly/internal/identity"
	"spendly/internal/log"
)

// Auth wraps the identity provider so that every failure reaches callers as
// a core.AppError with a localized message.
type Auth struct {
	provider  identity.Provider
	usernames *Usernames
	profiles  *Profiles
	logger    *log.Logger
}

// NewAuth builds the auth module. usernames and profiles may be nil, in
// which case reservations and public profiles are left alone.
func NewAuth(provider identity.Provider, usernames *Usernames, profiles *Profiles, logger *log.Logger) *Auth {
	return &Auth{
		provider:  provider,
		usernames: usernames,
		profiles:  profiles,
		logger:    logger.WithComponent(log.ComponentAccess),
	}
}

// Register creates the account and sets its display name.
func (a *Auth) Register(ctx context.Context, email, password, name string) (identity.Session, error) {
	sess, err := a.provider.SignUp(ctx, email, password)
	if err != nil {
		a.logger.WarnContext(ctx, "Sign-up failed", log.FieldErrorCode, identity.CodeOf(err), log.FieldError, err)
		return identity.Session{}, translate(opSignUp, err)
	}
	name = strings.TrimSpace(name)
	if name != "" {
		if err := a.provider.UpdateProfile(ctx, sess.Token, &name, nil); err != nil {
			return identity.Session{}, translate(opSignUp, err)
		}
		sess.User.DisplayName = name
	}
	if a.profiles != nil {
		if err := a.profiles.SaveProfile(ctx, sess.User.UID, &name, nil); err != nil {
			a.logger.WarnContext(ctx, "Failed to create public profile", log.FieldUserID, sess.User.UID, log.FieldError, err)
		}
	}
	a.logger.InfoContext(ctx, "Account registered", log.FieldUserID, sess.User.UID)
	return sess, nil
}

func (a *Auth) Login(ctx context.Context, email, password string) (identity.Session, error) {
	sess, err := a.provider.SignIn(ctx, email, password)
	if err != nil {
		a.logger.WarnContext(ctx, "Sign-in failed", log.FieldErrorCode, identity.CodeOf(err))
		return identity.Session{}, translate(opSignIn, err)
	}
	return sess, nil
}

func (a *Auth) Logout(ctx context.Context, token string) error {
	return translate(opSignOut, a.provider.SignOut(ctx, token))
}

// CurrentUser resolves token. An empty token yields (nil, nil).
func (a *Auth) CurrentUser(ctx context.Context, token string) (*core.User, error) {
	u, err := a.provider.CurrentUser(ctx, token)
	if err != nil {
		return nil, translate(opCurrentUser, err)
	}
	return u, nil
}

// OnAuthStateChanged forwards to the provider's observable.
func (a *Auth) OnAuthStateChanged(token string, fn func(*core.User)) identity.Unsubscribe {
	return a.provider.OnAuthStateChanged(token, fn)
}

func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	return translate(opPasswordReset, a.provider.SendPasswordReset(ctx, email))
}

// ResetPassword completes a reset with the emailed action code.
func (a *Auth) ResetPassword(ctx context.Context, code, newPassword string) error {
	return translate(opConfirmReset, a.provider.ConfirmPasswordReset(ctx, code, newPassword))
}

func (a *Auth) UpdateDisplayName(ctx context.Context, token, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ValidationError("El nombre es obligatorio")
	}
	if err := a.provider.UpdateProfile(ctx, token, &name, nil); err != nil {
		return translate(opUpdateProfile, err)
	}
	return a.mirrorProfile(ctx, token, &name, nil)
}

// UpdatePhotoURL points the account and its public profile at url.
func (a *Auth) UpdatePhotoURL(ctx context.Context, token, url string) error {
	if err := a.provider.UpdateProfile(ctx, token, nil, &url); err != nil {
		return translate(opUpdateProfile, err)
	}
	return a.mirrorProfile(ctx, token, nil, &url)
}

func (a *Auth) mirrorProfile(ctx context.Context, token string, displayName, photoURL *string) error {
	if a.profiles == nil {
		return nil
	}
	u, err := a.CurrentUser(ctx, token)
	if err != nil || u == nil {
		return err
	}
	return a.profiles.SaveProfile(ctx, u.UID, displayName, photoURL)
}

func (a *Auth) UpdateEmail(ctx context.Context, token, email string) error {
	return translate(opUpdateEmail, a.provider.UpdateEmail(ctx, token, email))
}

func (a *Auth) UpdatePassword(ctx context.Context, token, password string) error {
	return translate(opUpdatePassword, a.provider.UpdatePassword(ctx, token, password))
}

// Reauthenticate refreshes the login time required by sensitive operations.
func (a *Auth) Reauthenticate(ctx context.Context, token, password string) error {
	return translate(opReauthenticate, a.provider.Reauthenticate(ctx, token, password))
}

// DeleteAccount removes the account, then frees its username reservation.
func (a *Auth) DeleteAccount(ctx context.Context, token string) error {
	u, err := a.CurrentUser(ctx, token)
	if err != nil {
		return err
	}
	if u == nil {
		return core.NewError(core.ErrUnauthenticated, msgUnauthenticated)
	}

	var username string
	if a.usernames != nil {
		if username, err = a.usernames.UsernameFromUID(ctx, u.UID); err != nil {
			return err
		}
	}
	if err := a.provider.DeleteAccount(ctx, token); err != nil {
		return translate(opDeleteAccount, err)
	}
	if username != "" {
		if err := a.usernames.Delete(ctx, u.UID, username); err != nil {
			a.logger.ErrorContext(ctx, "Failed to free username of deleted account",
				log.FieldUserID, u.UID,
				log.FieldUsername, username,
				log.FieldError, err)
		}
	}
	a.logger.InfoContext(ctx, "Account deleted", log.FieldUserID, u.UID)
	return nil
}

func (a *Auth) SendVerificationEmail(ctx context.Context, token string) error {
	return translate(opSendVerification, a.provider.SendEmailVerification(ctx, token))
}

func (a *Auth) VerifyEmail(ctx context.Context, code string) error {
	return translate(opVerifyEmail, a.provider.VerifyEmail(ctx, code))
}
