package graph_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/testutil"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCommitCodec(t *testing.T) {
	dag := testutil.NewDAG(t)
	dag.Add("a")
	dag.Add("b")
	dag.Add("merge", "a", "b")
	commit := dag.Commit("merge")

	decoded, err := graph.UnmarshalCommit(graph.MarshalCommit(commit))
	testutil.MustDo(t, "unmarshal commit", err)
	if diff := deep.Equal(commit, decoded); diff != nil {
		t.Fatal("decoded commit differs:", diff)
	}
	// identity survives the storage round trip
	id, err := graph.ComputeCommitID(decoded)
	testutil.MustDo(t, "compute id", err)
	require.Equal(t, dag.ID("merge"), id)
}

func TestSignedHeadCodec(t *testing.T) {
	kp := testutil.NewKeyPair(t, 3)
	repo := graph.RepoID{Owner: kp.Public, Name: "repo"}
	id, _, err := graph.NewCommit(nil, []byte("root"))
	testutil.MustDo(t, "new commit", err)
	head := graph.NewSignedHead(repo, id, kp.Private)

	decoded, err := graph.UnmarshalSignedHead(graph.MarshalSignedHead(head))
	testutil.MustDo(t, "unmarshal head", err)
	if diff := deep.Equal(head, decoded); diff != nil {
		t.Fatal("decoded head differs:", diff)
	}
	require.True(t, decoded.Verify())
}

func TestSignedPullRequestCodec(t *testing.T) {
	owner := testutil.NewKeyPair(t, 3)
	forker := testutil.NewKeyPair(t, 4)
	pr := graph.Sign(graph.RawPullRequest{
		Repository: graph.RepoID{Owner: owner.Public, Name: "repo"},
		Fork:       graph.RepoID{Owner: forker.Public, Name: "fork"},
	}, forker.Private)

	decoded, err := graph.UnmarshalSignedPullRequest(graph.MarshalSignedPullRequest(pr))
	testutil.MustDo(t, "unmarshal pull request", err)
	require.True(t, pr.Equal(decoded))
	require.True(t, decoded.Verify())
}

func TestCodecUnknownFieldsSkipped(t *testing.T) {
	_, commit, err := graph.NewCommit(nil, []byte("root"))
	testutil.MustDo(t, "new commit", err)
	data := graph.MarshalCommit(commit)
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future field"))

	decoded, err := graph.UnmarshalCommit(data)
	testutil.MustDo(t, "unmarshal commit with unknown field", err)
	require.Equal(t, commit.Payload, decoded.Payload)
}

func TestCodecTruncated(t *testing.T) {
	_, commit, err := graph.NewCommit(nil, []byte("root"))
	testutil.MustDo(t, "new commit", err)
	data := graph.MarshalCommit(commit)

	_, err = graph.UnmarshalCommit(data[:len(data)-2])
	require.ErrorIs(t, err, graph.ErrDecode)
}
