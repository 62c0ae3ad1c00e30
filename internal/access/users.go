package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"spendly/internal/blob"
	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/log"
)

// PhotoURLTimeout bounds the download URL lookup after a photo upload.
const PhotoURLTimeout = 15 * time.Second

// PhotoFile is an uploaded profile picture.
type PhotoFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Profiles manages the public profile document users/<uid> and profile
// photos.
type Profiles struct {
	store      docstore.Store
	blobs      blob.Store
	usernames  *Usernames
	logger     *log.Logger
	now        func() time.Time
	urlTimeout time.Duration
}

func NewProfiles(store docstore.Store, blobs blob.Store, usernames *Usernames, logger *log.Logger) *Profiles {
	return &Profiles{
		store:      store,
		blobs:      blobs,
		usernames:  usernames,
		logger:     logger.WithComponent(log.ComponentAccess),
		now:        time.Now,
		urlTimeout: PhotoURLTimeout,
	}
}

// SetURLTimeout overrides PhotoURLTimeout. Non-positive values are ignored.
func (p *Profiles) SetURLTimeout(d time.Duration) {
	if d > 0 {
		p.urlTimeout = d
	}
}

// FindByUsername resolves a username (with or without "@") to its public
// profile.
func (p *Profiles) FindByUsername(ctx context.Context, username string) (*core.PublicUser, error) {
	uid, err := p.usernames.UIDFromUsername(ctx, core.CleanUsername(username))
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, core.NewError(core.ErrNotFound, msgUserNotFound)
	}
	return p.PublicInfo(ctx, uid)
}

// PublicInfo returns what other users may see about uid.
func (p *Profiles) PublicInfo(ctx context.Context, uid string) (*core.PublicUser, error) {
	snap, err := p.store.Get(ctx, UsersCollection, uid)
	if err != nil {
		return nil, translate(opPublicInfo, err)
	}
	if !snap.Exists {
		return nil, core.NewError(core.ErrNotFound, msgUserNotFound)
	}
	var info core.PublicUser
	if err := snap.Decode(&info); err != nil {
		return nil, translate(opPublicInfo, err)
	}
	info.UID = uid
	if info.Username, err = p.usernames.UsernameFromUID(ctx, uid); err != nil {
		return nil, err
	}
	return &info, nil
}

// SaveProfile writes the non-nil fields to the profile document, creating
// it when missing.
func (p *Profiles) SaveProfile(ctx context.Context, uid string, displayName, photoURL *string) error {
	if err := requireUser(uid); err != nil {
		return err
	}
	fields := docstore.Data{"updatedAt": docstore.ServerTimestamp}
	if displayName != nil {
		fields["displayName"] = strings.TrimSpace(*displayName)
	}
	if photoURL != nil {
		fields["photoURL"] = *photoURL
	}

	err := p.store.Update(ctx, UsersCollection, uid, fields)
	if docstore.IsCode(err, docstore.CodeNotFound) {
		fields["uid"] = uid
		fields["createdAt"] = docstore.ServerTimestamp
		err = p.store.Set(ctx, UsersCollection, uid, fields)
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save profile", log.FieldUserID, uid, log.FieldError, err)
		return translate(opSaveProfile, err)
	}
	return nil
}

// PhotoPath is where a profile photo uploaded at t is stored.
func PhotoPath(uid string, t time.Time, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("profile-photos/%s/%d.%s", uid, t.UnixMilli(), ext)
}

// UploadPhoto stores file and returns its download URL. The URL lookup is
// bounded by PhotoURLTimeout and fails with core.ErrTimeout when exceeded.
func (p *Profiles) UploadPhoto(ctx context.Context, uid string, file *PhotoFile) (string, error) {
	if err := requireUser(uid); err != nil {
		return "", err
	}
	if file == nil || file.Content == nil || file.Size == 0 {
		return "", core.ValidationError(msgPhotoMissing)
	}

	dst := PhotoPath(uid, p.now(), file.Name)
	task := p.blobs.Upload(ctx, dst, file.Content, file.Size, file.ContentType)
	if err := task.Wait(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Profile photo upload failed",
			log.FieldUserID, uid,
			log.FieldBlobPath, dst,
			log.FieldError, err)
		return "", translate(opUploadPhoto, err)
	}

	url, err := p.downloadURL(ctx, dst)
	if err != nil {
		if errors.Is(err, core.ErrTimeout) {
			p.logger.WarnContext(ctx, "Download URL lookup timed out", log.FieldBlobPath, dst)
		}
		return "", err
	}
	p.logger.InfoContext(ctx, "Profile photo uploaded", log.FieldUserID, uid, log.FieldBlobPath, dst)
	return url, nil
}

func (p *Profiles) downloadURL(ctx context.Context, dst string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.urlTimeout)
	defer cancel()

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		url, err := p.blobs.DownloadURL(ctx, dst)
		done <- result{url, err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.url, nil
		}
		if !errors.Is(r.err, context.DeadlineExceeded) {
			return "", translate(opUploadPhoto, r.err)
		}
	case <-ctx.Done():
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return "", translate(opUploadPhoto, ctx.Err())
	}
	return "", &core.AppError{Kind: core.ErrTimeout, Message: msgPhotoTimeout, Err: context.DeadlineExceeded}
}
