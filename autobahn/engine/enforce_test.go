package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kantek-project/polizei/autobahn/blacklist"
	"github.com/kantek-project/polizei/autobahn/ledger"
)

func TestFormatReason(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Spambot[kv2 string 0x0003]", FormatReason(blacklist.Match{
		Category: blacklist.CategoryString, Reason: 3,
	}))
	assert.Equal("Spambot[kv2 domain 0x1337]", FormatReason(blacklist.Match{
		Category: blacklist.CategoryDomain, Reason: 1337,
	}))
	assert.Equal("Spambot[kv2 mhash 0x0042]", FormatReason(blacklist.Match{
		Category: blacklist.CategoryPerceptualHash, Reason: 42,
	}))
}

func TestEnforceManualMode(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)
	actions.RecentCounts[testSender] = 3

	chat := Chat{ID: -100, AdminRights: true, BanMode: BanMode{Kind: BanManual}}
	match := blacklist.Match{Category: blacklist.CategoryString, Reason: 7}

	out, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)

	assert.True(out.MessageDeleted)
	assert.True(out.LocalBanned)
	assert.False(out.Delegated)
	assert.True(out.GlobalBanned)
	assert.True(out.HistoryPurged)
	assert.False(out.Deduped)

	assert.Equal([]int64{42}, actions.Deleted)
	assert.Equal([]int64{testSender}, actions.LocalBans)
	require.Len(actions.GlobalBans, 1)
	assert.Equal("Spambot[kv2 string 0x0007]", actions.GlobalBans[0].Reason)
	assert.Equal([]int64{testSender}, actions.Purged)
}

func TestEnforceIdempotent(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)
	led := eng.Ledger.(*ledger.MemLedger)
	actions.RecentCounts[testSender] = 0

	chat := Chat{ID: -100, AdminRights: true, BanMode: BanMode{Kind: BanManual}}
	match := blacklist.Match{Category: blacklist.CategoryDomain, Reason: 9}

	first, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	assert.True(first.GlobalBanned)
	assert.Equal(1, led.Len())

	second, err := eng.Enforce(ctx, chat, testSender, 43, match)
	require.NoError(err)
	assert.True(second.Deduped)
	// the offending message is still removed on the deduped path
	assert.True(second.MessageDeleted)
	assert.False(second.GlobalBanned)
	assert.False(second.LocalBanned)
	assert.False(second.HistoryPurged)

	assert.Len(actions.GlobalBans, 1)
	assert.Len(actions.LocalBans, 1)
	assert.Equal(1, led.Len())
}

func TestEnforceRetriesAfterGlobalBanFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)
	led := eng.Ledger.(*ledger.MemLedger)

	chat := Chat{ID: -100, BanMode: BanMode{Kind: BanNone}}
	match := blacklist.Match{Category: blacklist.CategoryFile, Reason: 11}

	actions.Errs["ban_global"] = errors.New("flood wait")
	out, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	assert.False(out.GlobalBanned)
	// no record written: the next identical trigger must retry
	assert.Equal(0, led.Len())

	delete(actions.Errs, "ban_global")
	out, err = eng.Enforce(ctx, chat, testSender, 43, match)
	require.NoError(err)
	assert.False(out.Deduped)
	assert.True(out.GlobalBanned)
	assert.Equal(1, led.Len())
}

func TestEnforceDelegateMode(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)

	chat := Chat{ID: -100, Creator: true, BanMode: ParseBanMode("/gban")}
	match := blacklist.Match{Category: blacklist.CategoryChannel, Reason: 5}

	out, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	assert.True(out.Delegated)
	assert.False(out.LocalBanned)
	assert.True(out.GlobalBanned)

	require.Len(actions.Sent, 1)
	assert.Equal(int64(-100), actions.Sent[0].ChatID)
	assert.Equal("/gban 700000001 Spambot[kv2 channel 0x0005]", actions.Sent[0].Text)
}

func TestEnforceNoneModeSkipsLocalStep(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)

	chat := Chat{ID: -100, AdminRights: true, BanMode: ParseBanMode("none")}
	match := blacklist.Match{Category: blacklist.CategoryString, Reason: 6}

	out, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	assert.False(out.LocalBanned)
	assert.False(out.Delegated)
	// the global ban runs regardless of the local mode
	assert.True(out.GlobalBanned)
	assert.Empty(actions.LocalBans)
	assert.Empty(actions.Sent)
}

func TestEnforceWithoutAdminRights(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)

	chat := Chat{ID: -100, BanMode: BanMode{Kind: BanManual}}
	match := blacklist.Match{Category: blacklist.CategoryString, Reason: 6}

	out, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	// no rights: local step skipped entirely, global still runs
	assert.False(out.LocalBanned)
	assert.True(out.GlobalBanned)
	assert.Empty(actions.LocalBans)
}

func TestEnforceLocalBanFailureFallsThrough(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)
	actions.Errs["ban_local"] = errors.New("not enough rights")

	chat := Chat{ID: -100, AdminRights: true, BanMode: BanMode{Kind: BanManual}}
	match := blacklist.Match{Category: blacklist.CategoryString, Reason: 6}

	out, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	assert.False(out.LocalBanned)
	assert.True(out.GlobalBanned)
	require.Len(actions.GlobalBans, 1)
}

func TestEnforcePurgeThreshold(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	match := blacklist.Match{Category: blacklist.CategoryString, Reason: 6}
	chat := Chat{ID: -100, BanMode: BanMode{Kind: BanNone}}

	// exactly at the threshold: purged
	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)
	actions.RecentCounts[testSender] = 5
	out, err := eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	assert.True(out.HistoryPurged)
	assert.Equal([]int64{testSender}, actions.Purged)

	// one above: history kept
	eng = EngineTestFixture()
	actions = eng.Actions.(*FakeActions)
	actions.RecentCounts[testSender] = 6
	out, err = eng.Enforce(ctx, chat, testSender, 42, match)
	require.NoError(err)
	assert.False(out.HistoryPurged)
	assert.Empty(actions.Purged)
}

func TestEnforceJoinEventSkipsDelete(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	actions := eng.Actions.(*FakeActions)

	chat := Chat{ID: -100, BanMode: BanMode{Kind: BanNone}}
	match := blacklist.Match{Category: blacklist.CategoryBio, Reason: 6}

	out, err := eng.Enforce(ctx, chat, testSender, 0, match)
	require.NoError(err)
	assert.False(out.MessageDeleted)
	assert.Empty(actions.Deleted)
	assert.True(out.GlobalBanned)
}

func TestParseBanMode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(BanMode{Kind: BanManual}, ParseBanMode("manual"))
	assert.Equal(BanMode{Kind: BanNone}, ParseBanMode("none"))
	assert.Equal(BanMode{Kind: BanNone}, ParseBanMode(""))
	assert.Equal(BanMode{Kind: BanDelegate, Template: "/gban"}, ParseBanMode("delegate:/gban"))
	assert.Equal(BanMode{Kind: BanDelegate, Template: "/gban"}, ParseBanMode("/gban"))
}
