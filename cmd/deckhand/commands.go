package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/five82/deckhand/internal/app"
	"github.com/five82/deckhand/internal/dragdrop"
	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/poller"
	"github.com/five82/deckhand/internal/state"
)

var (
	errMissingArg     = errors.New("missing argument")
	errAlreadyMatched = errors.New("song already has a match")
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "print JSON instead of text"}
}

func followFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "follow",
		Aliases: []string{"f"},
		Usage:   "keep polling until the job finishes",
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Open the full-screen client (default)",
		Action: r.TUI,
	}
}

func songsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "songs",
		Usage: "List one page of saved songs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Usage: "page number, starting at 1", Value: 1},
			&cli.BoolFlag{Name: "exclude-in-playlist", Usage: "only songs in no playlist"},
			&cli.BoolFlag{Name: "in-playlist", Usage: "only songs in a playlist (wins over --exclude-in-playlist)"},
			jsonFlag(),
		},
		Action: r.Songs,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the download job of a song",
		ArgsUsage: "SPOTIFY_ID",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{followFlag()},
		Action:    r.Status,
	}
}

func retryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "Retry the failed download job of a song",
		ArgsUsage: "SPOTIFY_ID",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{followFlag()},
		Action:    r.Retry,
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "playlists",
		Usage:  "List playlists",
		Flags:  []cli.Flag{jsonFlag()},
		Action: r.Playlists,
	}
}

func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Manage a single playlist",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a playlist",
				ArgsUsage: "NAME",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action:    r.PlaylistCreate,
			},
			{
				Name:      "songs",
				Usage:     "List the songs of a playlist",
				ArgsUsage: "PLAYLIST_ID",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.PlaylistSongs,
			},
		},
	}
}

func assignCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "assign",
		Usage:     "Add a downloaded song to a playlist",
		ArgsUsage: "SPOTIFY_ID PLAYLIST_ID",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "song"},
			&cli.StringArg{Name: "playlist"},
		},
		Action: r.Assign,
	}
}

func matchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "match",
		Usage:     "List SoundCloud matches for a new song, or save one with --pick",
		ArgsUsage: "SPOTIFY_ID",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pick", Usage: "save the candidate with this number as the match"},
			followFlag(),
			jsonFlag(),
		},
		Action: r.Match,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Sync playlists into a Rekordbox database",
		ArgsUsage: "PATH",
		Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
		Action:    r.Export,
	}
}

// TUI runs the full-screen client.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	return app.Run(ctx, r.options(cmd))
}

// Songs prints one page of saved songs through a page store.
func (r *Runner) Songs(ctx context.Context, cmd *cli.Command) error {
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	page := int(cmd.Int("page"))
	if page < 1 {
		return fmt.Errorf("page must be 1 or more, got %d", page)
	}
	key := state.PageKey{
		Filter: state.Filter{
			ExcludeInPlaylist: cmd.Bool("exclude-in-playlist"),
			InPlaylist:        cmd.Bool("in-playlist"),
		}.Normalize(),
		Index: page - 1,
	}
	store := state.NewPageStore(state.SavedSongs(env.Client, env.Config.PageSize), key,
		state.Options{Name: "songs", Logger: env.Logger})
	defer store.Close()
	if err := store.Load(ctx); err != nil {
		return err
	}
	snap := store.Snapshot()

	if cmd.Bool("json") {
		return r.writeJSON(snap.Items)
	}
	r.writePlain("Saved songs, %s, page %d of %d (%d total)\n\n",
		key.Filter.Label(), page, max(snap.TotalPages, 1), snap.Total)
	r.writeSongs(snap.Items)
	return nil
}

// Status prints the job status of a song, following it with --follow.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	st, err := fetchStatus(ctx, env.Client, id)
	if err != nil {
		return err
	}
	r.writePlainln(describe(st))
	if !cmd.Bool("follow") {
		return nil
	}
	p := r.follow(env, id, st)
	if p.Start(ctx) {
		p.Wait()
	}
	return nil
}

// Retry retries a failed job through a poller, so the same legality rules
// apply as in the TUI.
func (r *Runner) Retry(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	st, err := fetchStatus(ctx, env.Client, id)
	if err != nil {
		return err
	}
	p := r.follow(env, id, st)
	p.Start(ctx)
	if err := p.Retry(ctx); err != nil {
		return err
	}
	if !cmd.Bool("follow") {
		p.Cancel()
		return nil
	}
	p.Wait()
	return nil
}

// follow returns a poller printing every status change.
func (r *Runner) follow(env *app.Env, id string, initial jobstatus.Status) *poller.Poller {
	last := initial
	return poller.New(env.Client, id, initial, func(st jobstatus.Status) {
		if st == last {
			return
		}
		last = st
		r.writePlainln(describe(st))
	}, env.PollerOptions())
}

// Playlists prints every playlist.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	playlists, err := env.Client.FetchPlaylists(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(playlists)
	}
	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for _, p := range playlists {
		r.writePlain("%6d  %s (%d songs)\n", p.ID, p.Name, p.SongCount)
	}
	return nil
}

// PlaylistCreate creates a playlist and prints its id.
func (r *Runner) PlaylistCreate(ctx context.Context, cmd *cli.Command) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	p, err := env.Client.CreatePlaylist(ctx, name)
	if err != nil {
		return err
	}
	r.writePlain("✓ Created playlist %q (id %d)\n", p.Name, p.ID)
	return nil
}

// PlaylistSongs prints the members of a playlist.
func (r *Runner) PlaylistSongs(ctx context.Context, cmd *cli.Command) error {
	id, err := playlistArg(cmd, "id")
	if err != nil {
		return err
	}
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	songs, err := env.Client.FetchPlaylistSongs(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(songs)
	}
	r.writeSongs(songs)
	return nil
}

// Assign adds a song to a playlist. Only songs whose job completed pass.
func (r *Runner) Assign(ctx context.Context, cmd *cli.Command) error {
	songID, err := requireArg(cmd, "song")
	if err != nil {
		return err
	}
	playlistID, err := playlistArg(cmd, "playlist")
	if err != nil {
		return err
	}
	env, err := r.env(cmd)
	if err != nil {
		return err
	}

	song, err := env.Client.FetchSong(ctx, songID)
	if err != nil {
		return err
	}
	st, err := fetchStatus(ctx, env.Client, songID)
	if err != nil {
		return err
	}
	song = song.WithStatus(st)
	if song.SpotifyID == "" {
		song.SpotifyID = songID
	}

	playlist, err := findPlaylist(ctx, env.Client, playlistID)
	if err != nil {
		return err
	}

	v := dragdrop.NewValidator(env.Client, nil, nil, env.Logger)
	drag, err := v.Begin(song)
	if err != nil {
		return err
	}
	if err := v.Drop(ctx, drag, playlist); err != nil {
		return err
	}
	r.writePlain("✓ Added %q to %q\n", song.Title, playlist.Name)
	return nil
}

// Match lists the SoundCloud candidates of a song. With --pick it saves one,
// which queues its download.
func (r *Runner) Match(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	pick := int(cmd.Int("pick"))
	if pick < 0 {
		return fmt.Errorf("pick must be 1 or more, got %d", pick)
	}
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	cands, err := env.Client.FetchMatches(ctx, id)
	if err != nil {
		return err
	}
	if pick == 0 {
		if cmd.Bool("json") {
			return r.writeJSON(cands)
		}
		r.writeCandidates(cands)
		return nil
	}
	if pick > len(cands.Matches) {
		return fmt.Errorf("pick %d: only %d candidates", pick, len(cands.Matches))
	}

	song, err := env.Client.FetchSong(ctx, id)
	if err != nil {
		return err
	}
	if song.SpotifyID == "" {
		song.SpotifyID = id
	}
	st, err := fetchStatus(ctx, env.Client, id)
	if err != nil {
		return err
	}
	if st.State != jobstatus.StateNone {
		return fmt.Errorf("%s: %w (%s)", id, errAlreadyMatched, describe(st))
	}
	track := cands.Matches[pick-1]
	if err := env.Client.SaveMatch(ctx, id, library.NewMatchRequest(song, track)); err != nil {
		return err
	}
	r.writePlain("✓ Saved %q by %s as the match for %q\n", track.Title, track.Artist, song.Title)
	if !cmd.Bool("follow") {
		return nil
	}
	st, err = fetchStatus(ctx, env.Client, id)
	if err != nil {
		return err
	}
	r.writePlainln(describe(st))
	p := r.follow(env, id, st)
	if p.Start(ctx) {
		p.Wait()
	}
	return nil
}

// Export syncs the playlists into the Rekordbox database at PATH.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	env, err := r.env(cmd)
	if err != nil {
		return err
	}
	res, err := env.Client.SyncRekordbox(ctx, path)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("rekordbox sync failed: %s", res.Message)
	}
	r.writePlain("✓ %s\n", res.Message)
	r.writePlain("  playlists added: %d\n  tracks added: %d\n", res.AddedPlaylists, res.AddedTracks)
	return nil
}

func (r *Runner) writeSongs(songs []library.Song) {
	if len(songs) == 0 {
		r.writePlainln("no songs")
		return
	}
	for _, s := range songs {
		label := "-"
		if st, known := s.Status(); known {
			label = describe(st)
		}
		r.writePlain("%-24s  %s - %s  [%s]\n", s.SpotifyID, s.Artist, s.Title, label)
	}
}

func (r *Runner) writeCandidates(cands library.MatchCandidates) {
	if cands.SearchFailed {
		r.writePlainln("SoundCloud search failed, try again later")
		return
	}
	if len(cands.Matches) == 0 {
		r.writePlainln("no matches found")
		return
	}
	for i, t := range cands.Matches {
		r.writePlain("%3d  %s - %s", i+1, t.Artist, t.Title)
		if t.DurationMS > 0 {
			r.writePlain("  (%s)", formatLength(t.DurationMS))
		}
		r.writePlain("\n      %s\n", t.URL)
	}
}

// formatLength renders milliseconds as m:ss.
func formatLength(ms int) string {
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func fetchStatus(ctx context.Context, client *library.Client, id string) (jobstatus.Status, error) {
	report, err := client.FetchDownloadStatus(ctx, id)
	if err != nil {
		return jobstatus.Status{}, err
	}
	return report.JobStatus()
}

func findPlaylist(ctx context.Context, client *library.Client, id int64) (library.Playlist, error) {
	playlists, err := client.FetchPlaylists(ctx)
	if err != nil {
		return library.Playlist{}, err
	}
	for _, p := range playlists {
		if p.ID == id {
			return p, nil
		}
	}
	return library.Playlist{}, fmt.Errorf("playlist %d: %w", id, library.ErrNotFound)
}

// describe is Status.Label with text for a song that has no match.
func describe(st jobstatus.Status) string {
	if label := st.Label(); label != "" {
		return label
	}
	return "No match chosen"
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", errMissingArg, name)
	}
	return v, nil
}

func playlistArg(cmd *cli.Command, name string) (int64, error) {
	v, err := requireArg(cmd, name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid playlist id %q", v)
	}
	return id, nil
}
