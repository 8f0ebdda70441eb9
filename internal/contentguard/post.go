package contentguard

import "fmt"

const (
	anonymousAuthor = "Anonymous"
	defaultRating   = 3
	minRating       = 1
	maxRating       = 5
)

// PostLimits bounds the sanitized title and body lengths of a forum post.
type PostLimits struct {
	TitleMin int `json:"title_min"`
	TitleMax int `json:"title_max"`
	BodyMin  int `json:"body_min"`
	BodyMax  int `json:"body_max"`
}

// DefaultPostLimits returns the forum defaults.
func DefaultPostLimits() PostLimits {
	return PostLimits{TitleMin: 3, TitleMax: 50, BodyMin: 10, BodyMax: 1000}
}

// PostInput is an unvalidated forum post submission.
type PostInput struct {
	Title   string
	Summary string
	Author  string
	Rating  *int
}

// Post is a sanitized forum post ready for storage.
type Post struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
}

// PostResult holds the prepared post, or the reasons it was refused.
type PostResult struct {
	Post   Post              `json:"post"`
	Valid  bool              `json:"is_valid"`
	Errors map[string]string `json:"errors"`
}

// PreparePost guards and sanitizes a post submission. Malicious title or body
// text is rejected; otherwise the sanitized lengths are checked against lim.
// A missing rating defaults to 3 and any rating is clamped to [1, 5].
func PreparePost(in PostInput, lim PostLimits) PostResult {
	errs := make(map[string]string)

	title := SanitizeField(in.Title)
	summary := SanitizeField(in.Summary)

	switch {
	case title.Rejected:
		errs["title"] = "title contains potentially harmful content"
	case !ValidateContentLength(title.Value, lim.TitleMin, lim.TitleMax):
		errs["title"] = fmt.Sprintf("Title must be between %d and %d characters", lim.TitleMin, lim.TitleMax)
	}

	switch {
	case summary.Rejected:
		errs["summary"] = "summary contains potentially harmful content"
	case !ValidateContentLength(summary.Value, lim.BodyMin, lim.BodyMax):
		errs["summary"] = fmt.Sprintf("Content must be between %d and %d characters", lim.BodyMin, lim.BodyMax)
	}

	author := in.Author
	if author == "" {
		author = anonymousAuthor
	}

	rating := defaultRating
	if in.Rating != nil && *in.Rating != 0 {
		rating = max(minRating, min(maxRating, *in.Rating))
	}

	res := PostResult{Valid: len(errs) == 0, Errors: errs}
	if res.Valid {
		res.Post = Post{
			Title:   title.Value,
			Summary: summary.Value,
			Author:  Sanitize(author),
			Rating:  rating,
		}
	}
	return res
}
