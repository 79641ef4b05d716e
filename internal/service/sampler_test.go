package service

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func testComposition(t *testing.T, sigma float64) *SolutionComposition {
	t.Helper()
	comp, err := NewSolutionComposition("seawater-mod", []Measurement{
		{Name: "temp", Value: 25, Sigma: sigma, Unit: "degC"},
		{Name: "pH", Value: 8.1, Sigma: sigma / 10},
		{Name: "B", Value: 0.42, Sigma: sigma, Unit: "mmol/kgw"},
		{Name: "Na", Value: 480, Sigma: sigma * 10, Unit: "mmol/kgw"},
		{Name: "Alkalinity", Value: 2.3, Sigma: sigma, Unit: "meq/kgw"},
	}, map[string]float64{"d11B": 39.61})
	if err != nil {
		t.Fatalf("构造组成失败: %v", err)
	}
	return comp
}

// 零不确定度时，任何种子下采样结果都和原组成一致（退化采样性质）
func TestSampleZeroUncertainty(t *testing.T) {
	comp := testComposition(t, 0)

	for _, seed := range []int64{1, 42, 99999} {
		trials, err := NewSampler(seed).Sample(comp, 20)
		if err != nil {
			t.Fatalf("seed=%d 采样失败: %v", seed, err)
		}
		if len(trials) != 20 {
			t.Fatalf("seed=%d 期望 20 个试验，得到 %d", seed, len(trials))
		}
		for _, tr := range trials {
			for _, m := range comp.Measurements() {
				v, ok := tr.Get(m.Name)
				if !ok {
					t.Fatalf("试验 %d 缺少量 %s", tr.Index, m.Name)
				}
				if v != m.Value {
					t.Errorf("seed=%d trial=%d %s: 期望 %g，得到 %g", seed, tr.Index, m.Name, m.Value, v)
				}
			}
		}
	}
}

// 同种子同输入必须逐位一致（可复现性要求）
func TestSampleDeterministic(t *testing.T) {
	comp := testComposition(t, 0.05)

	a, err := NewSampler(1234).Sample(comp, 50)
	if err != nil {
		t.Fatalf("第一次采样失败: %v", err)
	}
	b, err := NewSampler(1234).Sample(comp, 50)
	if err != nil {
		t.Fatalf("第二次采样失败: %v", err)
	}

	if !reflect.DeepEqual(a, b) {
		t.Fatal("同种子两次采样结果不一致")
	}

	// 不同种子应产生不同的扰动
	c, err := NewSampler(5678).Sample(comp, 50)
	if err != nil {
		t.Fatalf("第三次采样失败: %v", err)
	}
	if reflect.DeepEqual(a, c) {
		t.Fatal("不同种子产生了相同的采样序列")
	}
}

// 惰性序列和物化序列在同种子下产出完全相同的试验
func TestStreamMatchesSample(t *testing.T) {
	comp := testComposition(t, 0.05)

	materialized, err := NewSampler(7).Sample(comp, 30)
	if err != nil {
		t.Fatalf("物化采样失败: %v", err)
	}

	ch, err := NewSampler(7).Stream(context.Background(), comp, 30)
	if err != nil {
		t.Fatalf("惰性采样失败: %v", err)
	}
	streamed := make([]Trial, 0, 30)
	for tr := range ch {
		streamed = append(streamed, tr)
	}

	if !reflect.DeepEqual(materialized, streamed) {
		t.Fatal("Stream 与 Sample 结果不一致")
	}
}

// 消费方中途放弃时，ctx 取消要能解除生产方阻塞并关闭 channel
func TestStreamCancelUnblocksProducer(t *testing.T) {
	comp := testComposition(t, 0.05)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewSampler(7).Stream(ctx, comp, 1000)
	if err != nil {
		t.Fatalf("惰性采样失败: %v", err)
	}

	received := 0
	if _, ok := <-ch; ok {
		received++
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if received >= 999 {
					t.Fatalf("取消后仍产出了全部试验: %d", received)
				}
				return
			}
			received++
		case <-deadline:
			t.Fatal("取消后 channel 未关闭，生产方可能仍在阻塞")
		}
	}
}

// uniform 分布的抽样必须落在 [mean-sigma, mean+sigma]
func TestSampleUniformBounds(t *testing.T) {
	comp, err := NewSolutionComposition("uniform-case", []Measurement{
		{Name: "B", Value: 0.4, Sigma: 0.1, Unit: "mmol/kgw", Dist: DistUniform},
		{Name: "Ca", Value: 10, Sigma: 2, Unit: "mmol/kgw", Dist: DistFixed},
	}, nil)
	if err != nil {
		t.Fatalf("构造组成失败: %v", err)
	}

	trials, err := NewSampler(3).Sample(comp, 200)
	if err != nil {
		t.Fatalf("采样失败: %v", err)
	}

	varied := false
	for _, tr := range trials {
		b, _ := tr.Get("B")
		if b < 0.3 || b > 0.5 {
			t.Fatalf("trial=%d uniform 抽样越界: %g", tr.Index, b)
		}
		if b != 0.4 {
			varied = true
		}
		// fixed 不扰动
		if ca, _ := tr.Get("Ca"); ca != 10 {
			t.Fatalf("trial=%d fixed 量被扰动: %g", tr.Index, ca)
		}
	}
	if !varied {
		t.Fatal("uniform 抽样 200 次全部等于均值，分布没有生效")
	}
}

func TestSampleCorrelated(t *testing.T) {
	comp := testComposition(t, 0.05)

	corr := mat.NewSymDense(2, []float64{1, 0.95, 0.95, 1})
	s := NewSampler(11)
	if err := s.WithCorrelation([]string{"B", "Na"}, corr); err != nil {
		t.Fatalf("配置相关采样失败: %v", err)
	}

	trials, err := s.Sample(comp, 500)
	if err != nil {
		t.Fatalf("相关采样失败: %v", err)
	}

	// 高正相关下，B 和 Na 的偏离方向应大体一致
	agree := 0
	for _, tr := range trials {
		b, _ := tr.Get("B")
		na, _ := tr.Get("Na")
		if math.Signbit(b-0.42) == math.Signbit(na-480) {
			agree++
		}
	}
	if agree < 400 {
		t.Errorf("相关系数 0.95 下同向偏离只有 %d/500，相关结构可能没生效", agree)
	}

	// 同种子可复现
	s2 := NewSampler(11)
	_ = s2.WithCorrelation([]string{"B", "Na"}, corr)
	again, err := s2.Sample(comp, 500)
	if err != nil {
		t.Fatalf("第二次相关采样失败: %v", err)
	}
	if !reflect.DeepEqual(trials, again) {
		t.Fatal("相关采样同种子结果不一致")
	}
}

func TestSampleCorrelationValidation(t *testing.T) {
	comp := testComposition(t, 0.05)

	// 非正定矩阵
	bad := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	if err := NewSampler(1).WithCorrelation([]string{"B", "Na"}, bad); err == nil {
		t.Fatal("非正定相关矩阵应当报错")
	}

	// 引用不存在的量
	ok := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	s := NewSampler(1)
	if err := s.WithCorrelation([]string{"B", "Sr"}, ok); err != nil {
		t.Fatalf("配置相关采样失败: %v", err)
	}
	if _, err := s.Sample(comp, 10); err == nil {
		t.Fatal("相关矩阵引用不存在的量应当报错")
	}
}

func TestSampleCountValidation(t *testing.T) {
	comp := testComposition(t, 0.05)
	if _, err := NewSampler(1).Sample(comp, 0); err == nil {
		t.Fatal("试验数为 0 应当报错")
	}
	trials, err := NewSampler(1).Sample(comp, 7)
	if err != nil {
		t.Fatalf("采样失败: %v", err)
	}
	if len(trials) != 7 {
		t.Fatalf("期望恰好 7 个试验，得到 %d", len(trials))
	}
	for i, tr := range trials {
		if tr.Index != i {
			t.Fatalf("试验序号错乱: 位置 %d 的序号是 %d", i, tr.Index)
		}
	}
}
