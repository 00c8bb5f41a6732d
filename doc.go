// Package imgcache provides a content-addressed image cache in front of a
// remote blob store.
//
// A [Service] answers reads from three tiers in order: a count-bounded
// in-memory LRU, a directory of files on local disk, and a remote
// [blobstore.Store]. Remote hits are written back to both local tiers.
// Writes go through [Service.Publish], which re-encodes the image as JPEG
// under a byte ceiling, mints a fresh ID, warms the local tiers and uploads
// the result.
//
// # Quick Start
//
//	store, err := s3.New(s3.Config{Endpoint: "localhost:9000", Bucket: "images"})
//	if err != nil {
//	    return err
//	}
//	svc, err := imgcache.New("/var/cache/app/ImageCache", store,
//	    imgcache.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    return err
//	}
//
//	id, err := svc.Publish(ctx, raw, 0)
//	var upErr *imgcache.UploadError
//	if errors.As(err, &upErr) {
//	    // id is valid and cached locally; retry later with svc.Upload.
//	}
//
//	data, ok := svc.Fetch(ctx, id)
//
// # Identifiers
//
// IDs are lower-case canonical UUIDs. They are never reused, so cached
// entries never go stale and no tier revalidates against the store.
//
// # Failure model
//
// Reads never fail: every problem on the read path is logged and reported
// as a miss. Writes return typed errors; see [UploadError] and
// [CompressionError].
package imgcache
