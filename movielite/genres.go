// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package movielite

import (
	"context"
	"sort"

	"github.com/wholegroup/movie-app-sub000/moviesync"
)

// GenreCount is one entry of the genre popularity ranking.
type GenreCount struct {
	Name  string
	Count int
}

// RankGenres counts genre occurrences across movies and returns a stable
// ranking: descending count, then ascending name.
func RankGenres(movies []moviesync.MovieRow) []GenreCount {
	counts := make(map[string]int)
	for _, movie := range movies {
		for _, genre := range movie.Genres {
			counts[genre]++
		}
	}

	out := make([]GenreCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, GenreCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// GenreRanking derives the popularity ranking from the mirrored catalog.
func (r *Replica) GenreRanking(ctx context.Context) ([]GenreCount, error) {
	movies, err := r.Movies(ctx)
	if err != nil {
		return nil, err
	}
	return RankGenres(movies), nil
}
