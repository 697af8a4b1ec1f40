package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/sources"
)

func adaptersOf(ads ...sources.Adapter) []sources.Adapter { return ads }

// fakeAdapter 测试用适配器: 可注入延迟、结果与失败
type fakeAdapter struct {
	src     models.Source
	delay   time.Duration
	results []models.Result
	err     error
	calls   int32
}

func (f *fakeAdapter) Source() models.Source { return f.src }

func (f *fakeAdapter) Search(ctx context.Context, _ *browser.Session, _ string, limit int) ([]models.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, models.NewSourceError(f.src, models.KindTimeout, ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := f.results
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAdapter) callCount() int { return int(atomic.LoadInt32(&f.calls)) }

func result(src models.Source, title, url string) models.Result {
	return models.Result{Source: src, Title: title, URL: url}
}

func allQuery(limit int) models.Query {
	return models.Query{Text: "AI 银行", Limit: limit, Sources: models.SourcePriority}
}

func TestAggregator_PartialSuccess(t *testing.T) {
	// 一个来源失败,其余成功: 响应携带成功结果与失败原因,绝不整体失败
	wechat := &fakeAdapter{src: models.SourceWechat,
		results: []models.Result{result(models.SourceWechat, "微信文章", "https://mp.weixin.qq.com/s/1")}}
	kr := &fakeAdapter{src: models.Source36kr,
		err: models.NewSourceError(models.Source36kr, models.KindBlocked, errors.New("验证页"))}
	xhs := &fakeAdapter{src: models.SourceXHS,
		results: []models.Result{result(models.SourceXHS, "小红书笔记", "https://www.xiaohongshu.com/explore/abc")}}

	agg := NewAggregator(nil, adaptersOf(wechat, kr, xhs), time.Second)

	resp, err := agg.Search(context.Background(), allQuery(3))
	require.NoError(t, err, "部分成功不应是整体失败")

	results := resp.Results()
	require.Len(t, results, 2)
	assert.Equal(t, models.SourceWechat, results[0].Source)
	assert.Equal(t, models.SourceXHS, results[1].Source)

	errs := resp.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, models.KindBlocked, errs[models.Source36kr])
}

func TestAggregator_PriorityOrdering(t *testing.T) {
	// 最高优先级的来源最慢完成,输出顺序仍按固定优先级而非完成时间
	wechat := &fakeAdapter{src: models.SourceWechat, delay: 150 * time.Millisecond,
		results: []models.Result{result(models.SourceWechat, "慢", "https://mp.weixin.qq.com/s/1")}}
	kr := &fakeAdapter{src: models.Source36kr,
		results: []models.Result{result(models.Source36kr, "快", "https://36kr.com/p/1")}}
	xhs := &fakeAdapter{src: models.SourceXHS,
		results: []models.Result{result(models.SourceXHS, "快", "https://www.xiaohongshu.com/explore/a")}}

	agg := NewAggregator(nil, adaptersOf(wechat, kr, xhs), time.Second)

	resp, err := agg.Search(context.Background(), allQuery(0))
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, models.SourceWechat, resp.Outcomes[0].Source)
	assert.Equal(t, models.Source36kr, resp.Outcomes[1].Source)
	assert.Equal(t, models.SourceXHS, resp.Outcomes[2].Source)
}

func TestAggregator_TimeoutIsolation(t *testing.T) {
	// 一个来源的就绪条件永不满足: 它按超时落败,其他来源在各自预算内正常完成
	slow := &fakeAdapter{src: models.Source36kr, delay: 10 * time.Second}
	wechat := &fakeAdapter{src: models.SourceWechat,
		results: []models.Result{result(models.SourceWechat, "正常", "https://mp.weixin.qq.com/s/1")}}
	xhs := &fakeAdapter{src: models.SourceXHS,
		results: []models.Result{result(models.SourceXHS, "正常", "https://www.xiaohongshu.com/explore/a")}}

	agg := NewAggregator(nil, adaptersOf(wechat, slow, xhs), 100*time.Millisecond)

	start := time.Now()
	resp, err := agg.Search(context.Background(), allQuery(0))
	elapsed := time.Since(start)

	require.NoError(t, err, "慢来源超时不应拖垮整体")
	// 超时来源会被用新标签页重试一次,整体耗时约两个超时预算,远小于其10秒延迟
	assert.Less(t, elapsed, 2*time.Second, "慢来源不应拖慢整次调用")

	errs := resp.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, models.KindTimeout, errs[models.Source36kr])
	assert.Len(t, resp.Results(), 2)
}

func TestAggregator_AllFailed(t *testing.T) {
	wechat := &fakeAdapter{src: models.SourceWechat,
		err: models.NewSourceError(models.SourceWechat, models.KindBlocked, errors.New("反爬"))}
	xhs := &fakeAdapter{src: models.SourceXHS,
		err: models.NewSourceError(models.SourceXHS, models.KindLoginRequired, errors.New("未登录"))}

	agg := NewAggregator(nil, adaptersOf(wechat, xhs), time.Second)

	resp, err := agg.Search(context.Background(), models.Query{
		Text: "测试", Sources: []models.Source{models.SourceWechat, models.SourceXHS}})
	require.Error(t, err, "所有来源失败时整体应失败")
	require.NotNil(t, resp, "失败原因仍应带回")
	assert.True(t, resp.AllFailed())
}

func TestAggregator_RetryPolicy(t *testing.T) {
	t.Run("timeout类失败重试一次", func(t *testing.T) {
		ad := &fakeAdapter{src: models.SourceWechat,
			err: models.NewSourceError(models.SourceWechat, models.KindTimeout, errors.New("就绪超时"))}
		agg := NewAggregator(nil, adaptersOf(ad), time.Second)

		_, err := agg.Search(context.Background(), models.Query{
			Text: "测试", Sources: []models.Source{models.SourceWechat}})
		require.Error(t, err)
		assert.Equal(t, 2, ad.callCount(), "navigation/timeout失败应恰好重试一次")
	})

	t.Run("login_required绝不重试", func(t *testing.T) {
		ad := &fakeAdapter{src: models.SourceXHS,
			err: models.NewSourceError(models.SourceXHS, models.KindLoginRequired, errors.New("未登录"))}
		agg := NewAggregator(nil, adaptersOf(ad), time.Second)

		resp, err := agg.Search(context.Background(), models.Query{
			Text: "测试", Sources: []models.Source{models.SourceXHS}})
		require.Error(t, err)
		assert.Equal(t, 1, ad.callCount(), "登录类失败重试只会加重风控")

		// 结局是login_required且零结果,不是空成功
		require.Len(t, resp.Outcomes, 1)
		assert.Equal(t, models.KindLoginRequired, models.KindOf(resp.Outcomes[0].Err))
		assert.Empty(t, resp.Outcomes[0].Results)
	})

	t.Run("blocked绝不重试", func(t *testing.T) {
		ad := &fakeAdapter{src: models.SourceWechat,
			err: models.NewSourceError(models.SourceWechat, models.KindBlocked, errors.New("验证页"))}
		agg := NewAggregator(nil, adaptersOf(ad), time.Second)

		_, err := agg.Search(context.Background(), models.Query{
			Text: "测试", Sources: []models.Source{models.SourceWechat}})
		require.Error(t, err)
		assert.Equal(t, 1, ad.callCount())
	})
}

func TestAggregator_ConnectionFailureAborts(t *testing.T) {
	// 共享控制连接死亡对所有来源都是致命的,立即升级中止
	ad := &fakeAdapter{src: models.SourceWechat,
		err: models.NewSourceError(models.SourceWechat, models.KindConnection, errors.New("连接中断"))}
	agg := NewAggregator(nil, adaptersOf(ad), time.Second)

	resp, err := agg.Search(context.Background(), models.Query{
		Text: "测试", Sources: []models.Source{models.SourceWechat}})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, models.KindConnection, models.KindOf(err))
}

func TestAggregator_OnOutcome(t *testing.T) {
	wechat := &fakeAdapter{src: models.SourceWechat,
		results: []models.Result{result(models.SourceWechat, "A", "https://mp.weixin.qq.com/s/1")}}
	kr := &fakeAdapter{src: models.Source36kr}

	agg := NewAggregator(nil, adaptersOf(wechat, kr), time.Second)

	var done int32
	agg.OnOutcome(func(models.Source) { atomic.AddInt32(&done, 1) })

	_, err := agg.Search(context.Background(), models.Query{
		Text: "测试", Sources: []models.Source{models.SourceWechat, models.Source36kr}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&done), "每个来源完成都应回调一次")
}

func TestAggregator_ValidatesQuery(t *testing.T) {
	agg := NewAggregator(nil, adaptersOf(&fakeAdapter{src: models.SourceWechat}), time.Second)

	_, err := agg.Search(context.Background(), models.Query{Text: " "})
	require.Error(t, err)
}
