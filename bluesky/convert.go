package bluesky

import (
	"vacunagates/models"

	"github.com/bluesky-social/indigo/api/bsky"
)

// PostFromView normalizes a hydrated post view from the AppView into a Post.
// Location and geo are not part of the Bluesky data model and stay nil.
func PostFromView(view *bsky.FeedDefs_PostView) models.Post {
	post := models.Post{
		ID:  view.Uri,
		CID: view.Cid,
	}

	if view.Author != nil {
		post.AuthorDID = view.Author.Did
		post.AuthorHandle = view.Author.Handle
		if view.Author.DisplayName != nil {
			post.AuthorName = *view.Author.DisplayName
		}
	}

	if view.Record != nil {
		if record, ok := view.Record.Val.(*bsky.FeedPost); ok {
			post.Text = record.Text
			post.CreatedAt = record.CreatedAt
			post.IsReply = record.Reply != nil
		}
	}
	if post.CreatedAt == "" {
		post.CreatedAt = view.IndexedAt
	}

	if view.Viewer != nil {
		post.Favorited = view.Viewer.Like != nil
		post.Reposted = view.Viewer.Repost != nil
	}

	return post
}

// PostTags returns the hashtags attached to a post record, both from rich
// text facets and from the record's own tag list.
func PostTags(record *bsky.FeedPost) []string {
	if record == nil {
		return nil
	}
	tags := append([]string(nil), record.Tags...)
	for _, facet := range record.Facets {
		if facet == nil {
			continue
		}
		for _, feature := range facet.Features {
			if feature != nil && feature.RichtextFacet_Tag != nil {
				tags = append(tags, feature.RichtextFacet_Tag.Tag)
			}
		}
	}
	return tags
}
