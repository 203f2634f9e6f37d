package media

import (
	"github.com/samber/lo"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/types"
)

// Reduce turns a metadata document into the items to select from. A single
// item is returned as is. For a carousel the first policy keeps entry 0 and
// the all policy keeps every non-empty entry in order; nested playlists are
// flattened.
func Reduce(info *types.RawMediaInfo, policy config.CarouselPolicy) ([]*types.RawMediaInfo, error) {
	if !info.HasEntries() {
		return []*types.RawMediaInfo{info}, nil
	}
	if len(info.Entries) == 0 {
		return nil, types.ErrEmptyCarousel
	}

	if policy == config.CarouselFirst {
		first := info.Entries[0]
		if first == nil {
			return nil, types.ErrEmptyFirstItem
		}
		if first.HasEntries() {
			return Reduce(first, policy)
		}
		return []*types.RawMediaInfo{first}, nil
	}

	items := lo.FlatMap(lo.Compact(info.Entries), func(entry *types.RawMediaInfo, _ int) []*types.RawMediaInfo {
		if !entry.HasEntries() {
			return []*types.RawMediaInfo{entry}
		}
		nested, err := Reduce(entry, policy)
		if err != nil {
			return nil
		}
		return nested
	})
	if len(items) == 0 {
		return nil, types.ErrEmptyCarousel
	}
	return items, nil
}

// SelectAll applies Select to every item and keeps those with a recovered
// URL. Items without their own title inherit parentTitle.
func SelectAll(items []*types.RawMediaInfo, p types.Platform, parentTitle string) []*types.SelectedMedia {
	return lo.FilterMap(items, func(item *types.RawMediaInfo, _ int) (*types.SelectedMedia, bool) {
		sel, ok := Select(item, p)
		if ok && sel.Title == "" {
			sel.Title = parentTitle
		}
		return sel, ok
	})
}
