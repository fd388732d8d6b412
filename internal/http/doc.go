// Package http provides an HTTP client configured for Slooh API requests.
//
// The Client in this package handles:
//   - User-Agent headers and the Slooh session cookie
//   - JSON POST calls for the API
//   - File downloads with progress tracking
//   - Timeout handling
//
// # Basic Usage
//
//	client := http.NewClient(60 * time.Second)
//
//	// Call an API endpoint
//	var resp picturesResponse
//	err := client.PostJSON(ctx, apiURL, request, &resp)
//
//	// Download file with progress callback
//	n, err := client.DownloadFile(ctx, imageURL, "/path/to/image.png", func(written, total int64) {
//	    fmt.Printf("%.1f%%\n", float64(written)/float64(total)*100)
//	})
//
// # Progress Tracking
//
// The ProgressWriter type can be used to wrap any io.Writer for progress tracking:
//
//	pw := &http.ProgressWriter{
//	    Writer:   file,
//	    Total:    contentLength,
//	    OnUpdate: func(written, total int64) { /* update UI */ },
//	}
package http
