package registry

import "time"

// Presenter slot transitions. All transitions run under the registry mutex,
// so two simultaneous holders cannot exist.

// PresenterResult reports the outcome of a presenter request.
type PresenterResult int

const (
	PresenterGranted PresenterResult = iota
	PresenterBusy
	PresenterNoPermission
	PresenterUnknown
)

// RequestPresenter grants the slot to id if it is empty and the participant
// holds the screen-share permission.
func (r *Registry) RequestPresenter(id int) PresenterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return PresenterUnknown
	}
	if !p.perms.MayScreenShare {
		return PresenterNoPermission
	}
	if r.presenter != nil {
		if *r.presenter == id {
			return PresenterGranted // already held; idempotent
		}
		return PresenterBusy
	}

	pid := id
	r.presenter = &pid
	r.presenterSince = time.Now()
	p.media.IsPresenter = true
	p.media.ScreenSharing = true
	r.logger.Info("presenter granted", "id", id, "name", p.name)
	return PresenterGranted
}

// ReleasePresenter clears the slot if id holds it. Covers voluntary
// stop_presenting, host force-stop, and permission revocation.
func (r *Registry) ReleasePresenter(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releasePresenterLocked(id)
}

func (r *Registry) releasePresenterLocked(id int) bool {
	if r.presenter == nil || *r.presenter != id {
		return false
	}
	r.presenter = nil
	if p, ok := r.participants[id]; ok {
		p.media.IsPresenter = false
		p.media.ScreenSharing = false
	}
	r.logger.Info("presenter released", "id", id)
	return true
}

// Presenter returns the current holder and when it took the slot.
func (r *Registry) Presenter() (id int, since time.Time, held bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.presenter == nil {
		return 0, time.Time{}, false
	}
	return *r.presenter, r.presenterSince, true
}

// RevokeScreenShare turns off the may_screen_share permission and, when the
// target currently presents, force-stops it in the same critical section.
// Returns the updated snapshot and whether the slot was cleared.
func (r *Registry) RevokeScreenShare(id int) (Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false, ErrNotFound
	}
	p.perms.MayScreenShare = false
	cleared := r.releasePresenterLocked(id)
	return snapshot(p), cleared, nil
}
