// Package models defines the translation history record and its sync
// metadata.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TranslationKey identifies the translated phrase. Its fields are immutable
// for the life of a record and, together with the owning user, determine the
// record id.
type TranslationKey struct {
	Sentence            string `json:"sentence"`
	IsForcedTranslation bool   `json:"isForcedTranslation"`
	SourceLanguage      string `json:"sourceLanguage"`
	TargetLanguage      string `json:"targetLanguage"`
}

// RecordID derives the stable content-based record id from the key.
func (k TranslationKey) RecordID() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%t|%s|%s",
		k.Sentence, k.IsForcedTranslation, k.SourceLanguage, k.TargetLanguage)))
	return hex.EncodeToString(h[:])
}

// TranslateResult is the last computed translation payload. The sync core
// treats it as a single opaque value; only the fields the merge-candidate
// finder inspects are lifted out, the rest of the provider response stays
// in Raw.
type TranslateResult struct {
	Translation       string          `json:"translation"`
	Suggestion        string          `json:"suggestion,omitempty"`
	BaseForms         []string        `json:"baseForms,omitempty"`
	SimilarWords      []string        `json:"similarWords,omitempty"`
	CategoriesNumber  int             `json:"categoriesNumber"`
	DefinitionsNumber int             `json:"definitionsNumber"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// TranslationInstance is one entry of the append-only log of individual
// translation events.
type TranslationInstance struct {
	TranslationDate time.Time `json:"translationDate"`
	Tags            []string  `json:"tags,omitempty"`
}

// SyncData is the per-user watermark of what was last reconciled with the
// remote store: the server revision stamp, the local modification time and
// translation counter acknowledged by that revision, and the tag set the
// server held at that point (the base for three-way tag merges).
type SyncData struct {
	UserEmail                string    `json:"userEmail"`
	ServerTimestamp          int64     `json:"serverTimestamp"`
	LastModifiedDate         time.Time `json:"lastModifiedDate"`
	ServerTranslationsNumber int       `json:"serverTranslationsNumber"`
	ServerTags               []string  `json:"serverTags,omitempty"`
}

// HistoryRecord is the canonical translation history entry.
type HistoryRecord struct {
	ID string `json:"id"`
	TranslationKey
	User                    string                `json:"user"`
	TranslateResult         TranslateResult       `json:"translateResult"`
	TranslationsNumber      int                   `json:"translationsNumber"`
	Tags                    []string              `json:"tags,omitempty"`
	IsStarred               bool                  `json:"isStarred"`
	IsArchived              bool                  `json:"isArchived"`
	CreatedDate             time.Time             `json:"createdDate"`
	UpdatedDate             time.Time             `json:"updatedDate"`
	LastTranslatedDate      time.Time             `json:"lastTranslatedDate"`
	LastModifiedDate        time.Time             `json:"lastModifiedDate"`
	Instances               []TranslationInstance `json:"instances,omitempty"`
	BlacklistedMergeRecords []string              `json:"blacklistedMergeRecords,omitempty"`
	SyncData                []SyncData            `json:"syncData,omitempty"`
}

// UserSyncData returns the sync metadata for userEmail, or nil if this
// record has never been reconciled for that user.
func (r *HistoryRecord) UserSyncData(userEmail string) *SyncData {
	for i := range r.SyncData {
		if r.SyncData[i].UserEmail == userEmail {
			return &r.SyncData[i]
		}
	}
	return nil
}

// SetUserSyncData replaces (or appends) the sync metadata entry for
// sd.UserEmail.
func (r *HistoryRecord) SetUserSyncData(sd SyncData) {
	for i := range r.SyncData {
		if r.SyncData[i].UserEmail == sd.UserEmail {
			r.SyncData[i] = sd
			return
		}
	}
	r.SyncData = append(r.SyncData, sd)
}

// IsBlacklistedMerge reports whether id is in this record's merge blacklist.
func (r *HistoryRecord) IsBlacklistedMerge(id string) bool {
	for _, b := range r.BlacklistedMergeRecords {
		if b == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; slices are not shared with the receiver.
func (r *HistoryRecord) Clone() *HistoryRecord {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.BlacklistedMergeRecords = append([]string(nil), r.BlacklistedMergeRecords...)
	c.SyncData = append([]SyncData(nil), r.SyncData...)
	for i := range c.SyncData {
		c.SyncData[i].ServerTags = append([]string(nil), r.SyncData[i].ServerTags...)
	}
	c.Instances = append([]TranslationInstance(nil), r.Instances...)
	for i := range c.Instances {
		c.Instances[i].Tags = append([]string(nil), r.Instances[i].Tags...)
	}
	c.TranslateResult.BaseForms = append([]string(nil), r.TranslateResult.BaseForms...)
	c.TranslateResult.SimilarWords = append([]string(nil), r.TranslateResult.SimilarWords...)
	c.TranslateResult.Raw = append(json.RawMessage(nil), r.TranslateResult.Raw...)
	return &c
}

// UniqueTags collapses duplicates (case-sensitive) and returns the tags
// sorted, so tag sets compare and serialize deterministically.
func UniqueTags(tags ...[]string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, set := range tags {
		for _, tag := range set {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			result = append(result, tag)
		}
	}
	sort.Strings(result)
	return result
}
