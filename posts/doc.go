// Package posts stores blog posts in Redis.
//
// Layout under the configured prefix:
//
//	<prefix>:post:<id>   hash of title, body, author_id, created_at, updated_at
//	<prefix>:posts       sorted set of post ids scored by creation time (ms)
//
// Post ids are ULIDs, so they sort by creation time as well.
package posts
