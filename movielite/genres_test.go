// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

package movielite

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/wholegroup/movie-app-sub000/moviesync"
)

func genreFixture() []moviesync.MovieRow {
	return []moviesync.MovieRow{
		{MovieID: 1, Genres: []string{"Action", "Adventure", "Comedy"}},
		{MovieID: 2, Genres: []string{"Action", "Adventure", "Comedy"}},
		{MovieID: 3, Genres: []string{"Action", "Adventure", "Comedy"}},
		{MovieID: 4, Genres: []string{"Action", "Adventure", "Crime"}},
		{MovieID: 5, Genres: []string{"Comedy", "Crime", "Thriller"}},
		{MovieID: 6, Genres: []string{"Crime", "Drama", "Thriller"}},
		{MovieID: 7, Genres: []string{"Animation", "Sport"}},
	}
}

func TestRankGenres(t *testing.T) {
	got := RankGenres(genreFixture())

	want := []GenreCount{
		{Name: "Action", Count: 4},
		{Name: "Adventure", Count: 4},
		{Name: "Comedy", Count: 4},
		{Name: "Crime", Count: 3},
		{Name: "Thriller", Count: 2},
		{Name: "Animation", Count: 1},
		{Name: "Drama", Count: 1},
		{Name: "Sport", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranking = %+v, want %+v", got, want)
	}
}

func TestRankGenresEmpty(t *testing.T) {
	if got := RankGenres(nil); len(got) != 0 {
		t.Fatalf("ranking of empty catalog = %+v", got)
	}
}

func TestGenreRankingFromReplica(t *testing.T) {
	replica := newTestReplica(t)
	ctx := context.Background()

	rows := genreFixture()
	for i := range rows {
		rows[i].UpdatedAt = stamp(time.Hour)
	}
	if err := replica.UpsertMovies(ctx, rows); err != nil {
		t.Fatalf("seed movies: %v", err)
	}

	ranking, err := replica.GenreRanking(ctx)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(ranking) != 8 || ranking[0].Name != "Action" || ranking[0].Count != 4 {
		t.Fatalf("ranking = %+v", ranking)
	}
}
