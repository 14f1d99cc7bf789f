// Package fragments imports entity descriptions written in CUE.
//
// A fragment file sits next to the media it describes and plays the role
// of tag extraction: it is validated against an embedded schema, decoded
// into entities and saved through the library, where identity resolution
// folds it into whatever the catalog already knows.
//
//	release: post: {
//		title: "Post"
//		date:  "1995-06-13"
//		credits: [{name: "Björk", artist: {name: "Björk"}}]
//	}
package fragments
