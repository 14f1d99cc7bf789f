package replica

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/crate/internal/blob"
	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/transport"
)

// referencedDigests returns every blob digest named by a stored entity.
func (r *Replica) referencedDigests(ctx context.Context) ([]blob.Digest, error) {
	var all entity.Set
	for _, kind := range []entity.Kind{entity.KindRelease, entity.KindTrack} {
		list, err := r.lib.Store().List(ctx, kind, nil)
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			all = all.Union(entity.NewSet(entity.Digests(e)...))
		}
	}
	out := make([]blob.Digest, 0, len(all))
	for _, d := range all {
		out = append(out, blob.Digest(d))
	}
	return out, nil
}

// syncBlobs uploads referenced blobs the share lacks and downloads those
// only the share has. Identical content is never transferred twice.
func (r *Replica) syncBlobs(ctx context.Context, report *Report) error {
	digests, err := r.referencedDigests(ctx)
	if err != nil {
		return err
	}
	keys, err := r.transport.ListObjects(ctx, transport.BlobPrefix(r.prefix))
	if err != nil {
		return err
	}
	var remote []string
	for _, k := range keys {
		if d, ok := transport.DigestOf(k); ok {
			remote = append(remote, d)
		}
	}

	for _, d := range digests {
		log := r.logger.With("digest", d)
		if err := d.Validate(); err != nil {
			log.Warn("skipping invalid blob reference", "error", err)
			report.BlobsFailed++
			continue
		}
		onShare := slices.Contains(remote, string(d))
		local, err := r.blobs.Has(d)
		if err != nil {
			log.Warn("blob lookup failed", "error", err)
			report.BlobsFailed++
			continue
		}

		switch {
		case local && onShare:
		case local:
			if err := r.upload(ctx, d); err != nil {
				log.Warn("blob upload failed", "error", err)
				report.BlobsFailed++
				continue
			}
			report.BlobsUploaded++
		case onShare:
			if err := r.download(ctx, d); err != nil {
				log.Warn("blob download failed", "error", err)
				report.BlobsFailed++
				continue
			}
			report.BlobsDownloaded++
		default:
			log.Warn("referenced blob missing")
			report.BlobsMissing++
		}
	}
	return nil
}

func (r *Replica) upload(ctx context.Context, d blob.Digest) error {
	data, err := r.blobs.Get(d)
	if err != nil {
		return err
	}
	return r.transport.PutObject(ctx, transport.BlobKey(r.prefix, string(d)), data)
}

func (r *Replica) download(ctx context.Context, d blob.Digest) error {
	data, err := r.transport.GetObject(ctx, transport.BlobKey(r.prefix, string(d)))
	if err != nil {
		return err
	}
	if got := blob.Sum(data); got != d {
		return fmt.Errorf("shared blob %s hashes to %s", d, got)
	}
	_, _, err = r.blobs.Put(data)
	return err
}
