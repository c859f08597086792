package service

import (
	"strings"
	"sync"
	"time"

	"auth-core-service/internal/domain"
	"auth-core-service/internal/repository"
)

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*domain.SecurityEvent
}

func (f *fakeEventRepo) Append(e *domain.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventRepo) byType(eventType string) []*domain.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SecurityEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeAuthTokenRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*domain.AuthToken
}

func newFakeAuthTokenRepo() *fakeAuthTokenRepo {
	return &fakeAuthTokenRepo{rows: make(map[uint]*domain.AuthToken)}
}

func (f *fakeAuthTokenRepo) Create(t *domain.AuthToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeAuthTokenRepo) FindByHash(hash string, typ domain.AuthTokenType) (*domain.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TokenHash == hash && r.Type == typ {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrAuthTokenNotFound
}

func (f *fakeAuthTokenRepo) Consume(id uint, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.UsedAt != nil {
		return repository.ErrAuthTokenNotFound
	}
	used := now.UTC()
	r.UsedAt = &used
	return nil
}

func (f *fakeAuthTokenRepo) InvalidateActive(typ domain.AuthTokenType, userID *uint, email string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if r.Type != typ || r.UsedAt != nil || !r.ExpiresAt.After(now) {
			continue
		}
		if userID != nil {
			if r.UserID == nil || *r.UserID != *userID {
				continue
			}
		} else if r.Email != email {
			continue
		}
		r.ExpiresAt = now.UTC()
		n++
	}
	return n, nil
}

func (f *fakeAuthTokenRepo) CleanupExpired(olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.rows {
		if !r.ExpiresAt.After(olderThan) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeRefreshRepo struct {
	mu       sync.Mutex
	nextID   uint
	families map[string]*domain.RefreshTokenFamily
	tokens   map[uint]*domain.RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{
		families: make(map[string]*domain.RefreshTokenFamily),
		tokens:   make(map[uint]*domain.RefreshToken),
	}
}

func (f *fakeRefreshRepo) CreateFamily(fam *domain.RefreshTokenFamily, first *domain.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	famCp := *fam
	f.families[fam.FamilyID] = &famCp
	f.nextID++
	first.ID = f.nextID
	first.FamilyID = fam.FamilyID
	first.UserID = fam.UserID
	cp := *first
	f.tokens[first.ID] = &cp
	return nil
}

func (f *fakeRefreshRepo) FindTokenByHash(hash string) (*domain.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrRefreshTokenNotFound
}

func (f *fakeRefreshRepo) FindFamily(familyID string) (*domain.RefreshTokenFamily, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fam, ok := f.families[familyID]
	if !ok {
		return nil, repository.ErrRefreshFamilyNotFound
	}
	cp := *fam
	return &cp, nil
}

func (f *fakeRefreshRepo) Rotate(tokenID uint, successor *domain.RefreshToken, now time.Time) (*domain.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenID]
	if !ok || t.ConsumedAt != nil {
		return nil, repository.ErrRefreshTokenNotCurrent
	}
	consumed := now.UTC()
	t.ConsumedAt = &consumed
	f.nextID++
	successor.ID = f.nextID
	cp := *successor
	f.tokens[successor.ID] = &cp
	t.SupersededByTokenID = &successor.ID
	return successor, nil
}

func (f *fakeRefreshRepo) RevokeFamily(familyID, reason string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fam, ok := f.families[familyID]
	if !ok {
		return false, repository.ErrRefreshFamilyNotFound
	}
	if fam.RevokedAt != nil {
		return false, nil
	}
	revoked := now.UTC()
	fam.RevokedAt = &revoked
	fam.RevokeReason = &reason
	return true, nil
}

func (f *fakeRefreshRepo) CleanupExpiredTokens(olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, t := range f.tokens {
		if t.ConsumedAt != nil && !t.ExpiresAt.After(olderThan) {
			delete(f.tokens, id)
			n++
		}
	}
	return n, nil
}

type fakeCredentialRepo struct {
	mu       sync.Mutex
	creds    map[string]*domain.UserCredential
	attempts []*domain.LoginAttempt
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[string]*domain.UserCredential)}
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (f *fakeCredentialRepo) Create(c *domain.UserCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.Email = normEmail(c.Email)
	cp := *c
	f.creds[c.Email] = &cp
	return nil
}

func (f *fakeCredentialRepo) FindByEmail(email string) (*domain.UserCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[normEmail(email)]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCredentialRepo) FindByUserID(userID uint) (*domain.UserCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.creds {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCredentialNotFound
}

func (f *fakeCredentialRepo) AppendAttempt(a *domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.Email = normEmail(a.Email)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	f.attempts = append(f.attempts, &cp)
	return nil
}

func (f *fakeCredentialRepo) ResetFailures(email string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.creds[normEmail(email)]; ok {
		c.FailedLoginAttempts = 0
		c.LockedUntil = nil
		last := now.UTC()
		c.LastLoginAt = &last
	}
	return nil
}

func (f *fakeCredentialRepo) RegisterFailure(email string, lockFor func(failures int) *time.Time) (*domain.UserCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[normEmail(email)]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	c.FailedLoginAttempts++
	if until := lockFor(c.FailedLoginAttempts); until != nil {
		u := until.UTC()
		c.LockedUntil = &u
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCredentialRepo) Unlock(email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[normEmail(email)]
	if !ok || (c.LockedUntil == nil && c.FailedLoginAttempts == 0) {
		return false, nil
	}
	c.FailedLoginAttempts = 0
	c.LockedUntil = nil
	return true, nil
}

func (f *fakeCredentialRepo) CleanupAttempts(olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*domain.LoginAttempt
	var n int64
	for _, a := range f.attempts {
		if a.CreatedAt.After(olderThan) {
			kept = append(kept, a)
		} else {
			n++
		}
	}
	f.attempts = kept
	return n, nil
}

type fakeSecondFactorRepo struct {
	mu       sync.Mutex
	nextID   uint
	backup   map[uint]*domain.TotpBackupCode
	webauthn map[string]*domain.WebauthnCredential
	sms      map[uint]*domain.SmsVerificationCode
}

func newFakeSecondFactorRepo() *fakeSecondFactorRepo {
	return &fakeSecondFactorRepo{
		backup:   make(map[uint]*domain.TotpBackupCode),
		webauthn: make(map[string]*domain.WebauthnCredential),
		sms:      make(map[uint]*domain.SmsVerificationCode),
	}
}

func (f *fakeSecondFactorRepo) CreateBackupCodes(codes []*domain.TotpBackupCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range codes {
		f.nextID++
		c.ID = f.nextID
		cp := *c
		f.backup[c.ID] = &cp
	}
	return nil
}

func (f *fakeSecondFactorRepo) ConsumeBackupCode(userID uint, hash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.backup {
		if c.UserID == userID && c.CodeHash == hash && c.UsedAt == nil {
			used := now.UTC()
			c.UsedAt = &used
			return nil
		}
	}
	return repository.ErrBackupCodeNotFound
}

func (f *fakeSecondFactorRepo) CreateWebauthnCredential(c *domain.WebauthnCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	cp := *c
	f.webauthn[c.CredentialID] = &cp
	return nil
}

func (f *fakeSecondFactorRepo) FindWebauthnCredential(credentialID string) (*domain.WebauthnCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.webauthn[credentialID]
	if !ok {
		return nil, repository.ErrWebauthnCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeSecondFactorRepo) AdvanceSignCount(credentialID string, from, to uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.webauthn[credentialID]
	if !ok {
		return repository.ErrWebauthnCredentialNotFound
	}
	if c.SignCount != from || to <= from {
		return repository.ErrSignCountStale
	}
	c.SignCount = to
	return nil
}

func (f *fakeSecondFactorRepo) CreateSmsCode(c *domain.SmsVerificationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	cp := *c
	f.sms[c.ID] = &cp
	return nil
}

func (f *fakeSecondFactorRepo) FindActiveSmsCode(userID uint, now time.Time) (*domain.SmsVerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.SmsVerificationCode
	for _, c := range f.sms {
		if c.UserID == userID && c.Live(now) {
			if latest == nil || c.ID > latest.ID {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, repository.ErrSmsCodeNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeSecondFactorRepo) IncrementSmsAttempts(id uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.sms[id]
	if !ok {
		return 0, repository.ErrSmsCodeNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}

func (f *fakeSecondFactorRepo) ConsumeSmsCode(id uint, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.sms[id]
	if !ok || c.UsedAt != nil {
		return repository.ErrSmsCodeNotFound
	}
	used := now.UTC()
	c.UsedAt = &used
	return nil
}

func uintPtr(v uint) *uint { return &v }
