// Package stats 实现控制面的在线统计累加器
//
// # 核心组件
//
//   - MeanVar: Knuth 在线均值/方差、最小/最大值、定长滑动窗口的移动均值/方差
//   - StatusTracker: total/success/fail 计数与 active 仪表（不小于 0）
//   - PerformanceTracker: 基于时钟的计时器，结果（纳秒）送入 MeanVar
//   - Accumulator: 按名称懒创建上述跟踪器，提供
//     RecordDuration / RecordOutcome / Observe 三个入口
//   - ConsoleStats / ControlStats / AuthStats: 各服务器的指标集合
//
// # 指标导出
//
// 所有跟踪器把结果镜像到 prometheus 指标，注册到构造时传入的
// prometheus.Registerer。导出器（/metrics）读取的是原子指标，
// 不需要与写入方协作。
//
// # 并发安全
//
// 每个跟踪器只由一个服务器线程写入。Snapshot 读取内部状态时持有
// 跟踪器自身的短锁，仅为满足 Go 内存模型。
//
// # 使用示例
//
//	reg := prometheus.NewRegistry()
//	acc := stats.NewAccumulator(reg, stats.Options{Namespace: "ctlplane", WindowSize: 100})
//
//	acc.RecordDuration("handshake", elapsed.Nanoseconds())
//	acc.RecordOutcome("handshake", true)
//
//	snap := acc.MeanVar("handshake").Snapshot()
//	fmt.Println(snap.Mean, snap.Variance)
package stats
