package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKnowledgeItem() *KnowledgeItem {
	return &KnowledgeItem{
		Meta: Meta{
			ID:        "item-1",
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			CreatorID: "agent-1",
			Tier:      TierSemantic,
		},
		Content:     "cats are mammals",
		ContentType: "fact",
		Confidence:  0.9,
	}
}

func TestComputeChecksum_Deterministic(t *testing.T) {
	item := testKnowledgeItem()

	a, err := ComputeChecksum(item)
	require.NoError(t, err)
	b, err := ComputeChecksum(item)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // sha256 hex
}

func TestComputeChecksum_ExcludesChecksumField(t *testing.T) {
	item := testKnowledgeItem()

	without, err := ComputeChecksum(item)
	require.NoError(t, err)

	item.Checksum = without
	with, err := ComputeChecksum(item)
	require.NoError(t, err)

	assert.Equal(t, without, with)
}

func TestComputeChecksum_SensitiveToContent(t *testing.T) {
	a := testKnowledgeItem()
	b := testKnowledgeItem()
	b.Content = "dogs are mammals"

	checksumA, err := ComputeChecksum(a)
	require.NoError(t, err)
	checksumB, err := ComputeChecksum(b)
	require.NoError(t, err)

	assert.NotEqual(t, checksumA, checksumB)
}

func TestVerifyChecksum(t *testing.T) {
	item := testKnowledgeItem()

	checksum, err := ComputeChecksum(item)
	require.NoError(t, err)
	item.Checksum = checksum

	require.NoError(t, VerifyChecksum(item))

	item.Content = "tampered"
	err = VerifyChecksum(item)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
