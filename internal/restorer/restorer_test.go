package restorer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/fixture"
	"github.com/dupres/dupres/internal/index"
	"github.com/dupres/dupres/internal/manifest"
	rtest "github.com/dupres/dupres/internal/test"
	restoreui "github.com/dupres/dupres/internal/ui/restore"
	"github.com/dupres/dupres/internal/volume"

	"github.com/google/go-cmp/cmp"
)

func dirLocator(dir string) volume.Locator {
	return volume.LocatorFunc(func(id backup.VolumeID) (string, error) {
		return filepath.Join(dir, id.String()), nil
	})
}

func sources(set *fixture.Set) Sources {
	return Sources{
		Manifest: set.ManifestPath,
		Indexes:  set.IndexPaths,
		Volumes:  set.VolumePaths(),
		Locator:  dirLocator(set.Dir),
	}
}

// testSet writes a backup set with a small file, a file spanning two
// volumes, a folder and a symlink.
func testSet(t testing.TB) (*fixture.Set, *fixture.Volume, *fixture.Volume) {
	set := fixture.New(t, rtest.TempDir(t))
	vol1 := set.NewVolume()
	vol2 := set.NewVolume()

	set.AddFolder(`C:\data\`)
	set.AddFolder(`C:\data\sub\`).Mode = "0750"
	a := set.AddFile(`C:\data\a.txt`, []byte("hello"), vol1)
	a.Mode = "0600"

	data := rtest.Random(23, 250000)
	set.AddFileChunks(`C:\data\sub\b.bin`, [][]byte{data[:100000], data[100000:200000], data[200000:]},
		[]*fixture.Volume{vol1, vol2, vol2})
	set.AddFile(`C:\data\empty`, nil, vol1)
	set.AddSymlink(`C:\data\link`, "a.txt")
	return set, vol1, vol2
}

func readTree(t testing.TB, dir string) map[string]string {
	tree := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			tree[rel] = "-> " + target
		case d.IsDir():
			tree[rel+"/"] = ""
		default:
			buf, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			tree[rel] = string(buf)
		}
		return nil
	})
	rtest.OK(t, err)
	return tree
}

func TestRestore(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need special privileges")
	}

	set, _, _ := testSet(t)
	set.Write()
	dst := filepath.Join(rtest.TempDir(t), "restore")

	rep, err := Run(context.TODO(), sources(set), dst, Options{Concurrency: 2})
	rtest.OK(t, err)
	rtest.Assert(t, rep.OK(), "unexpected failures: %v", rep.Failures)
	rtest.Equals(t, 4, rep.Succeeded)
	rtest.Equals(t, 3, rep.DirsCreated)
	rtest.Equals(t, int64(250005), rep.BytesWritten)
	rtest.Equals(t, int64(2), rep.Volumes.VolumesOpened)

	want := map[string]string{
		"./":               "",
		"C/":               "",
		"C/data/":          "",
		"C/data/sub/":      "",
		"C/data/a.txt":     "hello",
		"C/data/empty":     "",
		"C/data/link":      "-> a.txt",
		"C/data/sub/b.bin": string(set.Entries[3].Content),
	}
	if diff := cmp.Diff(want, readTree(t, dst)); diff != "" {
		t.Errorf("restored tree differs (-want +got):\n%s", diff)
	}

	fi, err := os.Stat(filepath.Join(dst, "C", "data", "a.txt"))
	rtest.OK(t, err)
	rtest.Equals(t, os.FileMode(0600), fi.Mode().Perm())
	rtest.Assert(t, fi.ModTime().Equal(set.Time.Add(-time.Hour)), "wrong mtime %v", fi.ModTime())

	fi, err = os.Stat(filepath.Join(dst, "C", "data", "sub"))
	rtest.OK(t, err)
	rtest.Equals(t, os.FileMode(0750), fi.Mode().Perm())

	fi, err = os.Stat(filepath.Join(dst, "C", "data", "empty"))
	rtest.OK(t, err)
	rtest.Equals(t, os.FileMode(0644), fi.Mode().Perm())
}

func TestRestoreMissingVolume(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	vol1 := set.NewVolume()
	vol2 := set.NewVolume()
	set.AddFile("a.txt", []byte("first volume"), vol1)
	set.AddFile("b.txt", []byte("second volume"), vol2)
	set.AddFile("c.txt", []byte("first volume again"), vol1)
	vol2.Skip = true
	set.Write()
	dst := rtest.TempDir(t)

	rep, err := Run(context.TODO(), sources(set), dst, Options{Concurrency: 3})
	rtest.OK(t, err)
	rtest.Equals(t, 2, rep.Succeeded)
	rtest.Equals(t, 1, rep.Failed)
	rtest.Equals(t, "b.txt", rep.Failures[0].Path)
	rtest.Equals(t, backup.KindMissing, rep.Failures[0].Kind)

	want := map[string]string{
		"./":    "",
		"a.txt": "first volume",
		"c.txt": "first volume again",
	}
	if diff := cmp.Diff(want, readTree(t, dst)); diff != "" {
		t.Errorf("restored tree differs (-want +got):\n%s", diff)
	}
}

func TestRestoreConcurrency(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	set.BlockSize = 1000
	var vols []*fixture.Volume
	for i := 0; i < 4; i++ {
		vols = append(vols, set.NewVolume())
	}
	for i := 0; i < 40; i++ {
		data := rtest.Random(i, 500+i*200)
		set.AddFile(fmt.Sprintf("dir/%d/file%02d", i%5, i), data, vols[i%len(vols)])
	}
	set.Write()

	var trees []map[string]string
	for _, n := range []int{1, 8} {
		dst := rtest.TempDir(t)
		rep, err := Run(context.TODO(), sources(set), dst, Options{Concurrency: n, MaxOpenVolumes: 2})
		rtest.OK(t, err)
		rtest.Assert(t, rep.OK(), "concurrency %d: unexpected failures: %v", n, rep.Failures)
		rtest.Equals(t, 40, rep.Succeeded)
		trees = append(trees, readTree(t, dst))
	}

	if diff := cmp.Diff(trees[0], trees[1]); diff != "" {
		t.Errorf("result depends on concurrency (-sequential +concurrent):\n%s", diff)
	}
}

func TestRestoreDeterministicReport(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	vol1 := set.NewVolume()
	vol2 := set.NewVolume()
	for _, name := range []string{"z", "y", "x", "w"} {
		set.AddFile(name+"1", []byte(name+" ok"), vol1)
		set.AddFile(name+"2", []byte(name+" lost"), vol2)
	}
	vol2.Skip = true
	set.Write()

	var reports []*Report
	for i := 0; i < 2; i++ {
		rep, err := Run(context.TODO(), sources(set), rtest.TempDir(t), Options{Concurrency: 4})
		rtest.OK(t, err)
		reports = append(reports, rep)
	}

	rtest.Equals(t, 4, reports[0].Failed)
	var paths []string
	for _, f := range reports[0].Failures {
		paths = append(paths, f.Path)
	}
	rtest.Equals(t, []string{"w2", "x2", "y2", "z2"}, paths)

	summary := func(rep *Report) []string {
		var list []string
		for _, f := range rep.Failures {
			list = append(list, string(f.Kind)+" "+f.String())
		}
		return list
	}
	if diff := cmp.Diff(summary(reports[0]), summary(reports[1])); diff != "" {
		t.Errorf("reports differ:\n%s", diff)
	}
}

func TestRestoreSizeMismatch(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	vol := set.NewVolume()
	e := set.AddFile("big.bin", rtest.Random(5, 250000), vol)
	size := int64(250001)
	e.Size = &size
	set.AddFile("ok.txt", []byte("ok"), vol)
	set.Write()
	dst := rtest.TempDir(t)

	rep, err := Run(context.TODO(), sources(set), dst, Options{})
	rtest.OK(t, err)
	rtest.Equals(t, 1, rep.Failed)
	rtest.Equals(t, backup.KindCorruption, rep.Failures[0].Kind)

	_, err = os.Lstat(filepath.Join(dst, "big.bin"))
	rtest.Assert(t, os.IsNotExist(err), "corrupt file was written: %v", err)
}

func TestRestoreHashMismatch(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	vol := set.NewVolume()
	e := set.AddFile("big.bin", rtest.Random(6, 150000), vol)
	e.Hash = backup.Hash([]byte("something else")).Base64()
	set.Write()
	dst := rtest.TempDir(t)

	rep, err := Run(context.TODO(), sources(set), dst, Options{})
	rtest.OK(t, err)
	rtest.Equals(t, 1, rep.Failed)
	rtest.Equals(t, backup.KindVerification, rep.Failures[0].Kind)
	rtest.Equals(t, map[string]string{"./": ""}, readTree(t, dst))
}

func TestRestoreDryRun(t *testing.T) {
	set, _, _ := testSet(t)
	set.Write()
	dst := filepath.Join(rtest.TempDir(t), "restore")

	rep, err := Run(context.TODO(), sources(set), dst, Options{DryRun: true})
	rtest.OK(t, err)
	rtest.Assert(t, rep.OK(), "unexpected failures: %v", rep.Failures)
	rtest.Equals(t, 4, rep.Succeeded)
	rtest.Equals(t, int64(250005), rep.BytesWritten)

	_, err = os.Lstat(dst)
	rtest.Assert(t, os.IsNotExist(err), "dry run created the destination: %v", err)
}

func TestRestoreSymlinkWithoutTarget(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	set.AddSymlink("dangling", "")
	set.AddFile("ok.txt", []byte("ok"), set.NewVolume())
	set.Write()

	rep, err := Run(context.TODO(), sources(set), rtest.TempDir(t), Options{})
	rtest.OK(t, err)
	rtest.Equals(t, 1, rep.Succeeded)
	rtest.Equals(t, 1, rep.Failed)
	rtest.Equals(t, "dangling", rep.Failures[0].Path)
	rtest.Equals(t, backup.KindFormat, rep.Failures[0].Kind)
}

func TestRestoreOutsideDestination(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	vol := set.NewVolume()
	set.AddFile("../escape.txt", []byte("nope"), vol)
	set.AddFile(`dir\..\..\escape.txt`, []byte("nope"), vol)
	set.AddFile("inside.txt", []byte("yes"), vol)
	set.Write()
	base := rtest.TempDir(t)
	dst := filepath.Join(base, "restore")

	rep, err := Run(context.TODO(), sources(set), dst, Options{})
	rtest.OK(t, err)
	rtest.Equals(t, 1, rep.Succeeded)
	rtest.Equals(t, 2, rep.Failed)

	_, err = os.Lstat(filepath.Join(base, "escape.txt"))
	rtest.Assert(t, os.IsNotExist(err), "file written outside the destination")
}

func TestRestoreDuplicatePaths(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	vol := set.NewVolume()
	set.AddFile("dir/x", []byte("same"), vol)
	set.AddFile(`dir\x`, []byte("same"), vol)
	set.Write()
	dst := rtest.TempDir(t)

	rep, err := Run(context.TODO(), sources(set), dst, Options{Concurrency: 2})
	rtest.OK(t, err)
	rtest.Equals(t, 2, rep.Succeeded)
	rtest.Equals(t, map[string]string{"./": "", "dir/": "", "dir/x": "same"}, readTree(t, dst))
}

// cancellingFetcher cancels the run after a number of fetches.
type cancellingFetcher struct {
	Fetcher
	mu     sync.Mutex
	left   int
	cancel context.CancelFunc
}

func (f *cancellingFetcher) Fetch(ctx context.Context, id backup.ID) ([]byte, error) {
	f.mu.Lock()
	f.left--
	if f.left == 0 {
		f.cancel()
	}
	f.mu.Unlock()
	return f.Fetcher.Fetch(ctx, id)
}

func newRestorer(t testing.TB, set *fixture.Set, wrap func(Fetcher) Fetcher, opts Options) *Restorer {
	m, err := manifest.Read(set.ManifestPath)
	rtest.OK(t, err)
	idx, err := index.Build(context.TODO(), set.IndexPaths, index.BuildOptions{})
	rtest.OK(t, err)
	cache := volume.New(idx, dirLocator(set.Dir), volume.Options{})
	t.Cleanup(func() {
		_ = cache.Close()
	})

	var f Fetcher = cache
	if wrap != nil {
		f = wrap(f)
	}
	return NewRestorer(m, idx, f, opts)
}

func TestRestoreCancel(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	set.BlockSize = 1000
	vol := set.NewVolume()
	for i := 0; i < 5; i++ {
		set.AddFile(fmt.Sprintf("file%c", 'a'+i), rtest.Random(i, 5500), vol)
	}
	set.Write()
	dst := rtest.TempDir(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := newRestorer(t, set, func(f Fetcher) Fetcher {
		return &cancellingFetcher{Fetcher: f, left: 9, cancel: cancel}
	}, Options{Concurrency: 1})

	rep, err := res.Restore(ctx, dst)
	rtest.Assert(t, err != nil, "expected an error for a cancelled run")
	rtest.Assert(t, rep.Cancelled, "report not marked as cancelled")
	rtest.Equals(t, 1, rep.Succeeded)
	rtest.Equals(t, 4, rep.Failed)
	for _, f := range rep.Failures {
		rtest.Equals(t, backup.KindCancelled, f.Kind)
	}

	tree := readTree(t, dst)
	for name := range tree {
		rtest.Assert(t, !strings.HasPrefix(filepath.Base(name), tempPrefix), "temporary file %v left behind", name)
	}
	rtest.Equals(t, map[string]string{"./": "", "filea": string(set.Entries[0].Content)}, tree)
}

// fullFetcher fails one fetch with a disk full error.
type fullFetcher struct {
	Fetcher
	mu   sync.Mutex
	left int
}

func (f *fullFetcher) Fetch(ctx context.Context, id backup.ID) ([]byte, error) {
	f.mu.Lock()
	f.left--
	full := f.left == 0
	f.mu.Unlock()
	if full {
		return nil, &os.PathError{Op: "write", Path: "restore", Err: syscall.ENOSPC}
	}
	return f.Fetcher.Fetch(ctx, id)
}

func TestRestoreDiskFull(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("ENOSPC is not a Windows error")
	}

	set := fixture.New(t, rtest.TempDir(t))
	set.BlockSize = 1000
	vol := set.NewVolume()
	for i := 0; i < 5; i++ {
		set.AddFile(fmt.Sprintf("file%c", 'a'+i), rtest.Random(i, 5500), vol)
	}
	set.Write()
	dst := rtest.TempDir(t)

	res := newRestorer(t, set, func(f Fetcher) Fetcher {
		return &fullFetcher{Fetcher: f, left: 3}
	}, Options{Concurrency: 1})

	rep, err := res.Restore(context.Background(), dst)
	rtest.Assert(t, err != nil, "expected an error for a full destination")
	rtest.Assert(t, strings.Contains(err.Error(), "destination is full"), "wrong error %q", err)
	rtest.Assert(t, errors.Is(err, syscall.ENOSPC), "error %v does not wrap ENOSPC", err)
	rtest.Assert(t, rep.Cancelled, "report not marked as cancelled")
	rtest.Equals(t, 0, rep.Succeeded)
	rtest.Equals(t, 5, rep.Failed)

	rtest.Equals(t, "filea", rep.Failures[0].Path)
	rtest.Equals(t, backup.KindIO, rep.Failures[0].Kind)
	for _, f := range rep.Failures[1:] {
		rtest.Equals(t, backup.KindCancelled, f.Kind)
	}

	rtest.Equals(t, map[string]string{"./": ""}, readTree(t, dst))
}

func TestRestoreWithoutIndexFile(t *testing.T) {
	set := fixture.New(t, rtest.TempDir(t))
	vol1 := set.NewVolume()
	vol2 := set.NewVolume()
	set.AddFile("a.txt", []byte("indexed"), vol1)
	set.AddFile("b.txt", []byte("listed from the volume"), vol2)
	vol2.NoIndex = true
	set.Write()
	dst := rtest.TempDir(t)

	rep, err := Run(context.TODO(), sources(set), dst, Options{})
	rtest.OK(t, err)
	rtest.Assert(t, rep.OK(), "unexpected failures: %v", rep.Failures)
	rtest.Equals(t, 2, rep.Succeeded)
	rtest.Equals(t, 1, len(rep.Warnings))
	rtest.Assert(t, strings.Contains(rep.Warnings[0], vol2.Name), "warning %q does not name the volume", rep.Warnings[0])

	want := map[string]string{
		"./":    "",
		"a.txt": "indexed",
		"b.txt": "listed from the volume",
	}
	if diff := cmp.Diff(want, readTree(t, dst)); diff != "" {
		t.Errorf("restored tree differs (-want +got):\n%s", diff)
	}
}

func TestRestoreCancelledBeforeStart(t *testing.T) {
	set, _, _ := testSet(t)
	set.Write()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Run(ctx, sources(set), rtest.TempDir(t), Options{})
	rtest.Assert(t, err != nil, "expected an error for a cancelled run")
	if rep != nil {
		rtest.Equals(t, 0, rep.Succeeded)
	}
}

// memIndex is an index with a blocklist pointing to another blocklist, which
// index.Build refuses to produce.
type memIndex struct {
	blocks map[backup.ID]index.Location
	lists  map[backup.ID]backup.IDs
}

func (m *memIndex) Lookup(id backup.ID) (index.Location, bool) {
	loc, ok := m.blocks[id]
	return loc, ok
}

func (m *memIndex) Blocklist(id backup.ID) (backup.IDs, bool) {
	ids, ok := m.lists[id]
	return ids, ok
}

func (m *memIndex) IsBlocklist(id backup.ID) bool {
	_, ok := m.lists[id]
	return ok
}

func TestRestoreNestedBlocklist(t *testing.T) {
	inner := backup.Hash([]byte("inner"))
	outer := backup.Hash([]byte("outer"))
	block := backup.Hash([]byte("block"))

	idx := &memIndex{
		blocks: map[backup.ID]index.Location{
			block: {Volume: "v", Length: 5},
			inner: {Volume: "v", Length: 32},
			outer: {Volume: "v", Length: 32},
		},
		lists: map[backup.ID]backup.IDs{
			inner: {block},
			outer: {inner},
		},
	}

	m := &backup.Manifest{Entries: []*backup.FileEntry{
		{Path: "a", Kind: backup.KindFile, Size: 5, Ref: backup.Direct(block)},
		{Path: "nested", Kind: backup.KindFile, Size: 5, Ref: backup.BlockList(outer)},
	}}

	dst := filepath.Join(rtest.TempDir(t), "restore")
	rep, err := NewRestorer(m, idx, nil, Options{}).Restore(context.TODO(), dst)
	rtest.Assert(t, backup.KindOf(err) == backup.KindFormat, "wrong error %v", err)
	rtest.Assert(t, rep.Cancelled, "report not marked as cancelled")
	rtest.Equals(t, 2, rep.Failed)
	rtest.Equals(t, backup.KindCancelled, rep.Failures[0].Kind)
	rtest.Equals(t, backup.KindFormat, rep.Failures[1].Kind)

	_, err = os.Lstat(dst)
	rtest.Assert(t, os.IsNotExist(err), "aborted run created the destination")
}

type recordingPrinter struct {
	mu     sync.Mutex
	final  restoreui.State
	items  map[restoreui.Action]int
	errors []string
}

func (p *recordingPrinter) Update(restoreui.State, time.Duration) {}
func (p *recordingPrinter) Finish(s restoreui.State, _ time.Duration) {
	p.final = s
}
func (p *recordingPrinter) Error(item string, err error) {
	p.mu.Lock()
	p.errors = append(p.errors, item)
	p.mu.Unlock()
}
func (p *recordingPrinter) CompleteItem(action restoreui.Action, _ string, _ uint64) {
	p.mu.Lock()
	p.items[action]++
	p.mu.Unlock()
}

func TestRestoreProgress(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need special privileges")
	}

	for _, dryRun := range []bool{false, true} {
		t.Run(fmt.Sprintf("dry-run=%v", dryRun), func(t *testing.T) {
			set, _, _ := testSet(t)
			set.Write()

			printer := &recordingPrinter{items: make(map[restoreui.Action]int)}
			progress := restoreui.NewProgress(printer, 0)
			_, err := Run(context.TODO(), sources(set), filepath.Join(rtest.TempDir(t), "restore"),
				Options{Concurrency: 3, DryRun: dryRun, Progress: progress})
			progress.Finish()
			rtest.OK(t, err)

			rtest.Equals(t, restoreui.State{
				EntriesDone:  6,
				EntriesTotal: 6,
				BytesDone:    250005,
				BytesTotal:   250005,
			}, printer.final)

			fileAction := restoreui.ActionFileRestored
			if dryRun {
				fileAction = restoreui.ActionFileVerified
			}
			rtest.Equals(t, map[restoreui.Action]int{
				restoreui.ActionFolderCreated:  2,
				restoreui.ActionSymlinkCreated: 1,
				fileAction:                     3,
			}, printer.items)
			rtest.Equals(t, 0, len(printer.errors))
		})
	}
}
