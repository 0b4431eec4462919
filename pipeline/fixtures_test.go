package pipeline

import (
	"imagine-rag-backend/content"
)

var testCanon = CanonCourse{UID: "canon", Title: "Canon"}

func closurePage() content.Page {
	return content.Page{
		ID:           "p-1",
		Title:        "What is a closure",
		SubchapterID: "sub-js",
		Type:         content.PageTextImageCode,
		Concepts:     []string{"Closures"},
		Entries: content.Entries{
			content.TextImageCodeEntry{
				Text: "A closure captures variables.",
				Image: content.Image{
					URL: "https://cdn.example.com/cat.png",
					Alt: "A cat holding a box",
					Classification: &content.ImageClassification{
						Actors:   []string{"Closure Cat"},
						Concepts: []string{"Scope"},
					},
				},
				Code: content.Code{Source: "function outer() { return () => 1; }"},
			},
		},
	}
}

func testSnapshot() *content.Snapshot {
	return &content.Snapshot{
		Courses: []content.Course{
			{ID: "c-canon", UID: "canon", Title: "Canon", Description: "The canon of programming ideas."},
			{ID: "c-js", UID: "imagine-js", Title: "Imagine JS"},
		},
		Chapters: []content.Chapter{
			{ID: "ch-1", CourseID: "c-canon", Title: "Functions"},
			{ID: "ch-js", CourseID: "c-js", Title: "Basics", Description: "Start here."},
		},
		Subchapters: []content.Subchapter{
			{ID: "sub-1", ChapterID: "ch-1", Title: "Closures", Description: "Functions that remember."},
			{ID: "sub-js", ChapterID: "ch-js", Title: "Variables"},
		},
		Pages: []content.Page{
			closurePage(),
			{
				ID:           "p-2",
				Title:        "Closures in the canon",
				SubchapterID: "sub-1",
				Type:         content.PageText,
				Entries: content.Entries{
					content.TextEntry{Text: "Closures keep their lexical scope alive."},
				},
			},
		},
		Imagimodels: []content.Imagimodel{
			{
				ID:       "m-1",
				Title:    "The closure house",
				CourseID: "c-canon",
				Concepts: []string{"Closures"},
				Layers: []content.Layer{
					{Name: "Closure Cat", Description: "The cat guards the box.", ImageURL: "https://cdn.example.com/layer.png"},
				},
				Zones: []content.Zone{
					{Name: "Box", Description: "The captured variables.", X: 0.5, Y: 0.25, Zoom: 2},
				},
			},
		},
		Reflections: []content.Reflection{
			{ID: "r-1", UserID: "user-42", PageID: "p-1", AuthorLabel: "Ada", Body: "I finally get closures.", Comment: "Great page"},
		},
		Reviews: []content.Review{
			{ID: "rv-1", UserID: "user-7", CourseID: "c-js", Rating: 5, Body: "Loved the imagimodels."},
		},
		BlogPosts: []content.BlogPost{
			{ID: "b-1", Slug: "memory", Title: "Memory palaces", Tags: []string{"Memory"}, Body: "Intro text\n\n## First\n\nAlpha body\n\n## Second\n\nBeta body\n"},
		},
	}
}

func testSource() *content.SnapshotSource {
	return content.NewSnapshotSource(testSnapshot())
}
