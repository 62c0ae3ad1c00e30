package access

import (
	"context"
	"math/rand/v2"

	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/log"
)

const maxSuggestions = 5

// Usernames reserves globally unique usernames. A reservation is the
// document usernames/<lowercased name> holding the owner's uid.
//
// Register checks availability and then writes; the two steps are not
// atomic, so two concurrent registrations of one name can both succeed.
type Usernames struct {
	store  docstore.Store
	logger *log.Logger
	suffix func() int
}

func NewUsernames(store docstore.Store, logger *log.Logger) *Usernames {
	return &Usernames{
		store:  store,
		logger: logger.WithComponent(log.ComponentAccess),
		suffix: func() int { return rand.IntN(1000) },
	}
}

// ValidateFormat reports whether username is 3-20 letters, digits or
// underscores.
func (u *Usernames) ValidateFormat(username string) bool {
	return core.ValidateUsername(username) == nil
}

// IsAvailable reports whether no reservation exists for username, ignoring
// case. A permission-denied answer counts as available.
func (u *Usernames) IsAvailable(ctx context.Context, username string) (bool, error) {
	snap, err := u.store.Get(ctx, UsernamesCollection, core.NormalizeUsername(username))
	if docstore.IsCode(err, docstore.CodePermissionDenied) {
		u.logger.WarnContext(ctx, "Username lookup denied by store rules, assuming available",
			log.FieldUsername, username)
		return true, nil
	}
	if err != nil {
		return false, translate(opCheckUsername, err)
	}
	return !snap.Exists, nil
}

// UIDFromUsername returns the owner of username, or "" when unreserved.
func (u *Usernames) UIDFromUsername(ctx context.Context, username string) (string, error) {
	res, err := u.reservation(ctx, username, opLookupUsername)
	if err != nil || res == nil {
		return "", err
	}
	return res.UID, nil
}

// UsernameFromUID returns the username reserved by uid, or "".
func (u *Usernames) UsernameFromUID(ctx context.Context, uid string) (string, error) {
	snaps, err := u.store.Query(ctx, docstore.From(UsernamesCollection).WhereEq("uid", uid))
	if err != nil {
		return "", translate(opLookupUsername, err)
	}
	if len(snaps) == 0 {
		return "", nil
	}
	var res core.UsernameReservation
	if err := snaps[0].Decode(&res); err != nil {
		return "", translate(opLookupUsername, err)
	}
	return res.Username, nil
}

func (u *Usernames) reservation(ctx context.Context, username string, op operation) (*core.UsernameReservation, error) {
	snap, err := u.store.Get(ctx, UsernamesCollection, core.NormalizeUsername(username))
	if err != nil {
		return nil, translate(op, err)
	}
	if !snap.Exists {
		return nil, nil
	}
	var res core.UsernameReservation
	if err := snap.Decode(&res); err != nil {
		return nil, translate(op, err)
	}
	return &res, nil
}

// Register reserves username for uid, keeping its original casing.
func (u *Usernames) Register(ctx context.Context, uid, username string) error {
	if err := requireUser(uid); err != nil {
		return err
	}
	if !u.ValidateFormat(username) {
		return core.ValidationError(msgInvalidUsername)
	}
	available, err := u.IsAvailable(ctx, username)
	if err != nil {
		return err
	}
	if !available {
		return core.NewError(core.ErrConflict, msgUsernameTaken)
	}
	if err := u.write(ctx, uid, username); err != nil {
		u.logger.ErrorContext(ctx, "Failed to register username",
			log.FieldUserID, uid,
			log.FieldUsername, username,
			log.FieldError, err)
		return translate(opRegisterUsername, err)
	}
	u.logger.InfoContext(ctx, "Username registered", log.FieldUserID, uid, log.FieldUsername, username)
	return nil
}

func (u *Usernames) write(ctx context.Context, uid, username string) error {
	return u.store.Set(ctx, UsernamesCollection, core.NormalizeUsername(username), docstore.Data{
		"uid":       uid,
		"username":  username,
		"createdAt": docstore.ServerTimestamp,
	})
}

// Update moves uid's reservation from oldName to newName. Renaming to the
// same name in another case is a no-op.
func (u *Usernames) Update(ctx context.Context, uid, oldName, newName string) error {
	if err := requireUser(uid); err != nil {
		return err
	}
	if core.NormalizeUsername(oldName) == core.NormalizeUsername(newName) {
		return nil
	}
	if !u.ValidateFormat(newName) {
		return core.ValidationError(msgInvalidUsername)
	}
	if err := u.checkOwner(ctx, uid, oldName, opUpdateUsername); err != nil {
		return err
	}
	available, err := u.IsAvailable(ctx, newName)
	if err != nil {
		return err
	}
	if !available {
		return core.NewError(core.ErrConflict, msgUsernameTaken)
	}
	if err := u.store.Delete(ctx, UsernamesCollection, core.NormalizeUsername(oldName)); err != nil {
		return translate(opUpdateUsername, err)
	}
	if err := u.write(ctx, uid, newName); err != nil {
		u.logger.ErrorContext(ctx, "Failed to write new username",
			log.FieldUserID, uid,
			log.FieldUsername, newName,
			log.FieldError, err)
		return translate(opUpdateUsername, err)
	}
	return nil
}

// Delete frees username. Only its owner may free it.
func (u *Usernames) Delete(ctx context.Context, uid, username string) error {
	if err := u.checkOwner(ctx, uid, username, opDeleteUsername); err != nil {
		return err
	}
	if err := u.store.Delete(ctx, UsernamesCollection, core.NormalizeUsername(username)); err != nil {
		return translate(opDeleteUsername, err)
	}
	return nil
}

func (u *Usernames) checkOwner(ctx context.Context, uid, username string, op operation) error {
	res, err := u.reservation(ctx, username, op)
	if err != nil {
		return err
	}
	if res != nil && res.UID != uid {
		return core.NewError(core.ErrForbidden, msgUsernameNotOwned)
	}
	return nil
}

// Suggestions proposes up to five available usernames derived from
// baseName. Any lookup failure yields an empty list.
func (u *Usernames) Suggestions(ctx context.Context, baseName string) []string {
	out := []string{}
	for _, candidate := range core.UsernameCandidates(baseName, u.suffix()) {
		available, err := u.IsAvailable(ctx, candidate)
		if err != nil {
			u.logger.WarnContext(ctx, "Failed to build username suggestions", log.FieldError, err)
			return []string{}
		}
		if available {
			out = append(out, candidate)
		}
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
