package index_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/fixture"
	"github.com/dupres/dupres/internal/index"
	rtest "github.com/dupres/dupres/internal/test"
	"github.com/dupres/dupres/internal/ui/progress"
)

func TestBuild(t *testing.T) {
	set := fixture.New(t, t.TempDir())
	vol1 := set.NewVolume()
	vol2 := set.NewVolume()

	data := rtest.Random(5, 250000)
	e := set.AddFileChunks("/big", [][]byte{data[:100000], data[100000:200000], data[200000:]},
		[]*fixture.Volume{vol1, vol2, vol1})
	set.AddFile("/small", []byte("small file"), vol2)
	set.Write()

	idx, err := index.Build(context.TODO(), set.IndexPaths, index.BuildOptions{Parallelism: 2})
	rtest.OK(t, err)

	// three content blocks, one blocklist and the small file
	rtest.Equals(t, 5, idx.Len())
	rtest.Equals(t, 0, len(idx.Warnings()))

	loc, ok := idx.Lookup(backup.Hash(data[100000:200000]))
	rtest.Assert(t, ok, "block not found")
	rtest.Equals(t, index.Location{Volume: backup.VolumeID(vol2.Name), Length: 100000}, loc)

	loc, ok = idx.Lookup(backup.Hash(data[200000:]))
	rtest.Assert(t, ok, "block not found")
	rtest.Equals(t, int64(50000), loc.Length)

	listID, err := backup.ParseBase64(e.Blocklists[0])
	rtest.OK(t, err)
	rtest.Assert(t, idx.IsBlocklist(listID), "blocklist not known")
	ids, ok := idx.Blocklist(listID)
	rtest.Assert(t, ok, "blocklist not found")
	want := backup.IDs{backup.Hash(data[:100000]), backup.Hash(data[100000:200000]), backup.Hash(data[200000:])}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("blocklist differs (-want +got):\n%s", diff)
	}

	vol, ok := idx.VolumeOf(backup.Hash([]byte("small file")))
	rtest.Assert(t, ok, "volume not found")
	rtest.Equals(t, backup.VolumeID(vol2.Name), vol)

	volumes := idx.Volumes()
	rtest.Equals(t, 2, len(volumes))
	rtest.Equals(t, backup.VolumeID(vol1.Name), volumes[0].ID)
	rtest.Assert(t, volumes[0].Size > 0, "volume size missing")

	_, ok = idx.Lookup(backup.Hash([]byte("unknown")))
	rtest.Assert(t, !ok, "unknown block found")
	rtest.Assert(t, !idx.IsBlocklist(backup.Hash(data[:100000])), "content block reported as blocklist")
}

func TestBuildVolumeWithoutIndex(t *testing.T) {
	set := fixture.New(t, t.TempDir())
	vol1 := set.NewVolume()
	vol2 := set.NewVolume()
	vol2.Codec = archive.Hex
	vol2.NoIndex = true

	data := rtest.Random(7, 150000)
	e := set.AddFileChunks("/big", [][]byte{data[:100000], data[100000:]}, []*fixture.Volume{vol1, vol2})
	set.AddFile("/lost-index", []byte("only in the volume"), vol2)
	set.Write()
	rtest.Equals(t, 1, len(set.IndexPaths))

	idx, err := index.Build(context.TODO(), set.IndexPaths, index.BuildOptions{Volumes: set.VolumePaths()})
	rtest.OK(t, err)

	loc, ok := idx.Lookup(backup.Hash([]byte("only in the volume")))
	rtest.Assert(t, ok, "block of the unindexed volume not found")
	rtest.Equals(t, index.Location{Volume: backup.VolumeID(vol2.Name), Length: 18}, loc)

	loc, ok = idx.Lookup(backup.Hash(data[100000:]))
	rtest.Assert(t, ok, "block not found")
	rtest.Equals(t, index.Location{Volume: backup.VolumeID(vol2.Name), Length: 50000}, loc)

	// the blocklist is stored with the indexed volume
	listID, err := backup.ParseBase64(e.Blocklists[0])
	rtest.OK(t, err)
	rtest.Assert(t, idx.IsBlocklist(listID), "blocklist not known")

	rtest.Equals(t, 2, len(idx.Volumes()))
	rtest.Equals(t, 1, len(idx.Warnings()))
	rtest.Assert(t, strings.Contains(idx.Warnings()[0], vol2.Name), "warning %q does not name the volume", idx.Warnings()[0])
}

func TestBuildUnreadableVolumeWithoutIndex(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "duplicati-b1.dblock.zip")
	rtest.OK(t, os.WriteFile(bad, []byte("not a zip file"), 0644))

	idx, err := index.Build(context.TODO(), nil, index.BuildOptions{Volumes: []string{bad}})
	rtest.OK(t, err)
	rtest.Equals(t, 0, idx.Len())
	rtest.Equals(t, 1, len(idx.Warnings()))
}

func TestBuildNoSources(t *testing.T) {
	idx, err := index.Build(context.TODO(), nil, index.BuildOptions{})
	rtest.OK(t, err)
	rtest.Equals(t, 0, idx.Len())
}

func blockDoc(blocks ...string) []byte {
	doc := `{"blocks":[`
	for i, b := range blocks {
		if i > 0 {
			doc += ","
		}
		doc += b
	}
	return []byte(doc + `],"volumesize":10}`)
}

func TestBuildConflicts(t *testing.T) {
	dir := t.TempDir()
	h := backup.Hash([]byte("x"))

	block := func(size int) string {
		return `{"hash":"` + h.Base64() + `","size":` + strconv.Itoa(size) + `}`
	}

	// the sources are merged in sorted order, a.dindex.zip wins
	b := fixture.ZipFile(t, dir, "b.dindex.zip", map[string][]byte{"vol/vol-b.dblock.zip": blockDoc(block(2))})
	a := fixture.ZipFile(t, dir, "a.dindex.zip", map[string][]byte{"vol/vol-a.dblock.zip": blockDoc(block(1))})
	c := fixture.ZipFile(t, dir, "c.dindex.zip", map[string][]byte{"vol/vol-a.dblock.zip": blockDoc(block(1))})

	for i := 0; i < 5; i++ {
		idx, err := index.Build(context.TODO(), []string{c, b, a}, index.BuildOptions{Parallelism: 3})
		rtest.OK(t, err)

		loc, ok := idx.Lookup(h)
		rtest.Assert(t, ok, "block not found")
		rtest.Equals(t, index.Location{Volume: "vol-a.dblock.zip", Length: 1}, loc)
		// the identical duplicate from c is not a conflict
		rtest.Equals(t, 1, len(idx.Warnings()))
	}
}

func TestBuildUnreadableSource(t *testing.T) {
	dir := t.TempDir()
	good := fixture.ZipFile(t, dir, "a.dindex.zip", map[string][]byte{})
	bad := filepath.Join(dir, "b.dindex.zip")
	rtest.OK(t, os.WriteFile(bad, []byte("not a zip file"), 0644))

	_, err := index.Build(context.TODO(), []string{good, bad}, index.BuildOptions{})
	var indexErr *backup.IndexError
	rtest.Assert(t, errors.As(err, &indexErr), "want IndexError, got %v", err)
	rtest.Equals(t, bad, indexErr.Source)
}

func TestBuildInvalidDocument(t *testing.T) {
	name := fixture.ZipFile(t, t.TempDir(), "a.dindex.zip", map[string][]byte{
		"vol/v.dblock.zip": []byte(`{"blocks":[{"hash":"not base64!","size":1}]}`),
	})

	_, err := index.Build(context.TODO(), []string{name}, index.BuildOptions{})
	rtest.Equals(t, backup.KindIndex, backup.KindOf(err))
}

func TestBuildTruncatedBlocklist(t *testing.T) {
	payload := make([]byte, 33)
	id := backup.Hash(payload)
	name := fixture.ZipFile(t, t.TempDir(), "a.dindex.zip", map[string][]byte{
		"list/" + id.Base64URL(): payload,
	})

	_, err := index.Build(context.TODO(), []string{name}, index.BuildOptions{})
	rtest.Equals(t, backup.KindIndex, backup.KindOf(err))
}

func TestBuildNestedBlocklist(t *testing.T) {
	set := fixture.New(t, t.TempDir())
	vol := set.NewVolume()
	inner := set.AddBlocklist(vol, vol.Add([]byte("a")), vol.Add([]byte("b")))
	set.AddBlocklist(vol, inner, vol.Add([]byte("c")))
	set.Write()

	_, err := index.Build(context.TODO(), set.IndexPaths, index.BuildOptions{})
	var formatErr *backup.FormatError
	rtest.Assert(t, errors.As(err, &formatErr), "want FormatError, got %v", err)
}

func TestBuildCancelled(t *testing.T) {
	set := fixture.New(t, t.TempDir())
	for i := 0; i < 4; i++ {
		set.AddFile(filepath.Join("/", string(rune('a'+i))), rtest.Random(i, 100), set.NewVolume())
	}
	set.Write()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := index.Build(ctx, set.IndexPaths, index.BuildOptions{Parallelism: 1})
	rtest.Assert(t, errors.Is(err, context.Canceled), "want context.Canceled, got %v", err)
}

func TestBuildProgress(t *testing.T) {
	set := fixture.New(t, t.TempDir())
	for i := 0; i < 3; i++ {
		set.AddFile(strconv.Itoa(i), []byte("file "+strconv.Itoa(i)), set.NewVolume())
	}
	set.Write()

	var final uint64
	counter := progress.NewCounter(time.Hour, uint64(len(set.IndexPaths)), func(value, total uint64, _ time.Duration, last bool) {
		if last {
			final = value
		}
	})

	_, err := index.Build(context.TODO(), set.IndexPaths, index.BuildOptions{Progress: counter})
	rtest.OK(t, err)
	counter.Done()
	rtest.Equals(t, uint64(3), final)
}
