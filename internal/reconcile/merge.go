package reconcile

import "example.com/hybridtracker/internal/domain"

// Merge combines two snapshots with per-record last-writer-wins. The remote
// snapshot is the base; a local record replaces the remote one when the
// remote side has no record or no timestamp for that key, or when the local
// timestamp is strictly later. Equal timestamps keep the remote record.
//
// Neither input is modified.
func Merge(local, remote domain.Snapshot) domain.Snapshot {
	merged, _, _ := merge(local, remote)
	return merged
}

// merge also reports how many contested keys each side won. Keys present on
// only one side are not counted.
func merge(local, remote domain.Snapshot) (merged domain.Snapshot, localWins, remoteWins int) {
	merged = make(domain.Snapshot, len(local)+len(remote))
	for key, rec := range remote {
		merged[key] = rec.Clone()
	}

	for key, localRec := range local {
		remoteRec, ok := remote[key]
		if !ok {
			merged[key] = localRec.Clone()
			continue
		}
		if localWinsOver(localRec, remoteRec) {
			merged[key] = localRec.Clone()
			localWins++
			continue
		}
		remoteWins++
	}
	return merged, localWins, remoteWins
}

func localWinsOver(local, remote domain.Record) bool {
	if remote.UpdatedAt == nil {
		return true
	}
	return local.UpdatedAt != nil && local.UpdatedAt.After(*remote.UpdatedAt)
}
