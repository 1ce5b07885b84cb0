package models

import (
	"time"
)

// Video is the normalized video record handed to downstream consumers.
// Numeric fields are guaranteed present and parsed; semantic correctness
// of provider-supplied content is not guaranteed.
type Video struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	ChannelID       string    `json:"channel_id" db:"channel_id"`
	ChannelTitle    string    `json:"channel_title,omitempty" db:"channel_title"`
	CategoryID      string    `json:"category_id,omitempty" db:"category_id"`
	Tags            []string  `json:"tags,omitempty" db:"tags"`
	PublishedAt     time.Time `json:"published_at" db:"published_at"`
	DurationSeconds int64     `json:"duration_seconds" db:"duration_seconds"`
	IsShort         bool      `json:"is_short" db:"is_short"`
	ViewCount       int64     `json:"view_count" db:"view_count"`
	LikeCount       int64     `json:"like_count" db:"like_count"`
	CommentCount    int64     `json:"comment_count" db:"comment_count"`
	FetchedAt       time.Time `json:"fetched_at" db:"fetched_at"`
}

// Channel is the normalized channel record.
type Channel struct {
	ID                string    `json:"id" db:"id"`
	Title             string    `json:"title" db:"title"`
	Country           string    `json:"country,omitempty" db:"country"`
	PublishedAt       time.Time `json:"published_at" db:"published_at"`
	SubscriberCount   int64     `json:"subscriber_count" db:"subscriber_count"`
	VideoCount        int64     `json:"video_count" db:"video_count"`
	ViewCount         int64     `json:"view_count" db:"view_count"`
	UploadsPlaylistID string    `json:"uploads_playlist_id,omitempty" db:"uploads_playlist_id"`
	FetchedAt         time.Time `json:"fetched_at" db:"fetched_at"`
}

// SearchResult is one hit from the search endpoint. It carries identifiers
// only; full records come from a follow-up batch lookup.
type SearchResult struct {
	VideoID      string    `json:"video_id"`
	ChannelID    string    `json:"channel_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}

// PlaylistItem is one entry of a playlist page.
type PlaylistItem struct {
	VideoID     string    `json:"video_id"`
	PlaylistID  string    `json:"playlist_id"`
	Position    int64     `json:"position"`
	PublishedAt time.Time `json:"published_at"`
}

// CommentThread is a top-level comment with its reply count.
type CommentThread struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	Author      string    `json:"author,omitempty"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	ReplyCount  int64     `json:"reply_count"`
	PublishedAt time.Time `json:"published_at"`
}

// Comment is a single reply comment.
type Comment struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id,omitempty"`
	Author      string    `json:"author,omitempty"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
}
