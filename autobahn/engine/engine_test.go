package engine

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kantek-project/polizei/autobahn/blacklist"
	"github.com/kantek-project/polizei/autobahn/ledger"
	"github.com/kantek-project/polizei/autobahn/platform"
)

func TestProcessMessageFullPath(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	store := eng.Store.(*blacklist.MemStore)
	actions := eng.Actions.(*FakeActions)
	store.Strings["buy followers"] = 7
	actions.RecentCounts[testSender] = 2

	chat := Chat{ID: -100, AdminRights: true, BanMode: BanMode{Kind: BanManual}}
	out, err := eng.ProcessMessage(ctx, chat, &MessageContext{
		ChatID: -100, MessageID: 42, SenderID: testSender,
		Text: "buy followers today",
	})
	require.NoError(err)
	require.NotNil(out)
	assert.Equal(blacklist.CategoryString, out.Match.Category)
	assert.True(out.MessageDeleted)
	assert.True(out.LocalBanned)
	assert.True(out.GlobalBanned)
	assert.True(out.HistoryPurged)
}

func TestProcessMessageSkipsExemptChat(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	store := eng.Store.(*blacklist.MemStore)
	store.Strings["buy followers"] = 7

	chat := Chat{ID: -100, Exempt: true, BanMode: BanMode{Kind: BanManual}}
	out, err := eng.ProcessMessage(ctx, chat, &MessageContext{
		ChatID: -100, MessageID: 42, SenderID: testSender,
		Text: "buy followers today",
	})
	require.NoError(err)
	require.Nil(out)
}

func TestProcessMessageSkipsAdminSender(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	store := eng.Store.(*blacklist.MemStore)
	admins := eng.Admins.(*FakeAdmins)
	actions := eng.Actions.(*FakeActions)
	store.Strings["buy followers"] = 7
	admins.Admins[-100] = []int64{testSender}

	chat := Chat{ID: -100, AdminRights: true, BanMode: BanMode{Kind: BanManual}}
	out, err := eng.ProcessMessage(ctx, chat, &MessageContext{
		ChatID: -100, MessageID: 42, SenderID: testSender,
		Text: "buy followers today",
	})
	require.NoError(err)
	require.Nil(out)
	assert.Empty(actions.GlobalBans)
	assert.Empty(actions.Deleted)
}

func TestProcessMessagePrefilter(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	store := eng.Store.(*blacklist.MemStore)
	resolver := eng.Resolver.(*FakeResolver)
	store.Strings["buy followers"] = 7
	chat := Chat{ID: -100, AdminRights: true, BanMode: BanMode{Kind: BanManual}}

	// account below the legacy floor
	out, err := eng.ProcessMessage(ctx, chat, &MessageContext{
		ChatID: -100, MessageID: 42, SenderID: 12345,
		Text: "buy followers today",
	})
	require.NoError(err)
	require.Nil(out)

	// bot sender
	botID := int64(700000002)
	resolver.Entities[strconv.FormatInt(botID, 10)] = &platform.Entity{ID: botID, IsBot: true}
	out, err = eng.ProcessMessage(ctx, chat, &MessageContext{
		ChatID: -100, MessageID: 43, SenderID: botID,
		Text: "buy followers today",
	})
	require.NoError(err)
	require.Nil(out)

	// blacklist-editing command quoting an entry
	out, err = eng.ProcessMessage(ctx, chat, &MessageContext{
		ChatID: -100, MessageID: 44, SenderID: testSender,
		Text: "/addblacklist string buy followers",
	})
	require.NoError(err)
	require.Nil(out)

	// same sender, plain message: evaluated and enforced
	out, err = eng.ProcessMessage(ctx, chat, &MessageContext{
		ChatID: -100, MessageID: 45, SenderID: testSender,
		Text: "buy followers today",
	})
	require.NoError(err)
	require.NotNil(out)
}

func TestProcessJoinBioScenario(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	store := eng.Store.(*blacklist.MemStore)
	actions := eng.Actions.(*FakeActions)
	led := eng.Ledger.(*ledger.MemLedger)
	store.Bios["buy followers"] = 3
	actions.RecentCounts[testSender] = 6

	chat := Chat{ID: -100, AdminRights: true, BanMode: ParseBanMode("manual")}
	out, err := eng.ProcessJoin(ctx, chat, &ProfileContext{
		UserID: testSender,
		Bio:    "buy followers now",
	})
	require.NoError(err)
	require.NotNil(out)
	assert.Equal(blacklist.CategoryBio, out.Match.Category)
	assert.Equal("Spambot[kv2 bio 0x0003]", out.Reason)

	// no message to delete on a join event
	assert.False(out.MessageDeleted)
	assert.True(out.LocalBanned)
	assert.True(out.GlobalBanned)
	// more than the threshold of recent messages: history stays
	assert.False(out.HistoryPurged)
	assert.Equal(1, led.Len())

	// the same user joining another chat is deduped off the ledger
	out, err = eng.ProcessJoin(ctx, Chat{ID: -200, AdminRights: true, BanMode: ParseBanMode("manual")}, &ProfileContext{
		UserID: testSender,
		Bio:    "buy followers now",
	})
	require.NoError(err)
	require.NotNil(out)
	assert.True(out.Deduped)
	assert.Len(actions.GlobalBans, 1)
}

func TestProcessJoinNoMatch(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	chat := Chat{ID: -100, BanMode: BanMode{Kind: BanNone}}

	out, err := eng.ProcessJoin(ctx, chat, &ProfileContext{UserID: testSender, Bio: "hello"})
	require.NoError(err)
	require.Nil(out)
}
