// Package organize decides where downloaded images live on disk.
//
// A Resolver expands configured folder and filename templates against a
// picture's metadata, sanitizing every path component:
//
//	r := organize.NewResolver("SloohImages", "{object}/{telescope}/{format}", "{telescope}_{filename}", "Unknown", log)
//	path := r.DestinationPath(pic)
//	// SloohImages/Trifid Nebula (M20)/Chile One/PNG/Chile One_m20.png
package organize
