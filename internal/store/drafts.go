package store

import "strings"

const draftKeyPrefix = "draft:"

// DraftStore persists in-progress answer text per question so an interrupted
// or restarted client resumes with the text intact. At most one draft exists
// per question id; a draft is cleared on successful submission.
type DraftStore struct {
	storage Storage
}

func NewDraftStore(storage Storage) *DraftStore {
	return &DraftStore{storage: storage}
}

// Save stores draft text for a question. Empty text clears the draft so an
// erased answer does not resurface on the next restore.
func (d *DraftStore) Save(questionID, text string) bool {
	if strings.TrimSpace(text) == "" {
		d.Clear(questionID)
		return true
	}
	return d.storage.Set(draftKeyPrefix+questionID, text)
}

func (d *DraftStore) Load(questionID string) (string, bool) {
	return d.storage.Get(draftKeyPrefix + questionID)
}

func (d *DraftStore) Clear(questionID string) {
	d.storage.Clear(draftKeyPrefix + questionID)
}

// ClearAll drops every stored draft. Used by reset when a brand-new
// interview starts.
func (d *DraftStore) ClearAll() {
	for _, key := range d.storage.Keys(draftKeyPrefix) {
		d.storage.Clear(key)
	}
}
