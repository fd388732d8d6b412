// Package slooh implements the client for the Slooh observatory API.
//
// # Authentication
//
// The API uses a two-step handshake: fetch an anonymous session token,
// then log in with credentials. The token rides along as the
// "_sloohsstkn" cookie and inside every request body:
//
//	client := slooh.NewClient("https://app.slooh.com", 60*time.Second, log)
//	if err := client.Login(ctx, username, password); err != nil {
//	    // errors.Is(err, slooh.ErrAuth): fatal, do not retry
//	}
//
// # Listing
//
// GetPictures pages through the photoroll (newest first) and
// GetMissionFITS lists the FITS side channel of one mission. Raw wire
// types live in the dto subpackage and are converted to model.Picture
// at the boundary.
package slooh
