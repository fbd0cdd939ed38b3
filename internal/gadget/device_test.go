//go:build test

//go:generate go run github.com/srgg/testify/depend/cmd/dependgen

package gadget_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/gadget"
	"github.com/srg/smartgadget/internal/gatt"
	"github.com/srg/smartgadget/internal/testutils"
	"github.com/srgg/testify/depend"
)

type DeviceTestSuite struct {
	testutils.GadgetSuite
}

func (suite *DeviceTestSuite) TestBind() {
	// GOAL: Verify the gadget layout is discovered and every channel is bound with its metadata
	//
	// TEST SCENARIO: Bind against the simulator → three channels with descriptions and units → logging service bound

	channels := suite.Device.Channels().Channels()
	suite.Require().Len(channels, 3)
	suite.Assert().Equal(gadget.Temperature, channels[0].Kind)
	suite.Assert().Equal(gadget.Humidity, channels[1].Kind)
	suite.Assert().Equal(gadget.Battery, channels[2].Kind)

	temp, err := suite.Device.Channel(gadget.Temperature)
	suite.Require().NoError(err)
	suite.Assert().Equal("Temperature °C", temp.Description())
	suite.Assert().Equal("°C", temp.Unit())
	suite.Assert().True(temp.Loggable)

	hum, _ := suite.Device.Channel(gadget.Humidity)
	suite.Assert().Equal("Relative Humidity", hum.Description())
	suite.Assert().Equal("%", hum.Unit())

	bat, _ := suite.Device.Channel(gadget.Battery)
	suite.Assert().Equal("Battery Level", bat.Description())
	suite.Assert().False(bat.Loggable)

	for _, c := range suite.Device.Logging().Characteristics() {
		suite.Assert().True(c.Bound(), "%s MUST be bound", c)
	}
	suite.Assert().Equal("Logger Interval Ms", suite.Device.Logging().LoggerIntervalMs.Description())

	suite.Run("rebind rejected", func() {
		err := suite.Device.Bind(suite.Ctx(), suite.Gadget)
		suite.Assert().ErrorIs(err, gatt.ErrAlreadyBound)
	})

	suite.Run("unbound device", func() {
		d := gadget.New(suite.Gadget, gadget.WithLogger(suite.Logger))
		_, err := d.ReadTemperature(suite.Ctx())
		suite.Assert().ErrorIs(err, gadget.ErrNotBound)
		_, err = d.DownloadLog(suite.Ctx(), 0, nil)
		suite.Assert().ErrorIs(err, gadget.ErrNotBound)
	})

	suite.Run("retry after failed bind", func() {
		g := testutils.NewHumigadget(testutils.DefaultHumigadgetConfig())
		g.FailRead(testutils.HumidityDescHandle, device.ErrTimeout)
		d := gadget.New(g, gadget.WithLogger(suite.Logger))

		err := d.Bind(suite.Ctx(), g)
		suite.Require().ErrorIs(err, device.ErrTimeout, "humidity description read MUST fail the bind")
		_, err = d.ReadTemperature(suite.Ctx())
		suite.Assert().ErrorIs(err, gadget.ErrNotBound, "failed bind MUST leave the device unbound")

		g.FailRead(testutils.HumidityDescHandle, nil)
		suite.Require().NoError(d.Bind(suite.Ctx(), g), "bind MUST succeed once the fault clears")
		suite.Assert().Equal(3, d.Channels().Len())
		v, err := d.ReadTemperature(suite.Ctx())
		suite.Require().NoError(err)
		suite.Assert().InDelta(21.5, v, 1e-6)
	})

	suite.Run("missing services", func() {
		p := testutils.NewFakePeripheral("11:22:33:44:55:66")
		err := gadget.New(p, gadget.WithLogger(suite.Logger)).Bind(suite.Ctx(), p)
		suite.Assert().Error(err)
	})
}

func (suite *DeviceTestSuite) TestReadCurrentValues() {
	ctx := suite.Ctx()

	temp, err := suite.Device.ReadTemperature(ctx)
	suite.Require().NoError(err)
	suite.Assert().InDelta(21.5, temp, 1e-6)

	hum, err := suite.Device.ReadHumidity(ctx)
	suite.Require().NoError(err)
	suite.Assert().InDelta(45.25, hum, 1e-6)

	bat, err := suite.Device.ReadBattery(ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal(uint8(87), bat)
}

func (suite *DeviceTestSuite) TestLiveNotifications() {
	// GOAL: Verify live notifications reach channel listeners and unknown handles are ignored
	//
	// TEST SCENARIO: Subscribe temperature, add listener → push frames for temperature and an unknown handle → Listen → listener sees the value

	suite.Require().NoError(suite.Device.Subscribe(suite.Ctx(), gadget.Temperature))

	var mu sync.Mutex
	var got []float64
	id, err := suite.Device.AddListener(gadget.Temperature, func(v gatt.Value, _ *gatt.Subscribable) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v.Float64())
		return nil
	})
	suite.Require().NoError(err)

	suite.Gadget.Notify(testutils.TemperatureHandle, testutils.Float32LE(22.5))
	suite.Gadget.Notify(0x0099, []byte{1, 2})

	suite.Require().NoError(suite.Device.Listen(suite.Ctx(), 30*time.Millisecond))

	mu.Lock()
	suite.Assert().Equal([]float64{22.5}, got)
	mu.Unlock()
	suite.Assert().True(suite.Logs.Contains("Ignoring notification for unknown handle", "handle=0x0099"))

	suite.Run("remove listener", func() {
		suite.Assert().True(suite.Device.RemoveListener(gadget.Temperature, id))
		suite.Assert().False(suite.Device.RemoveListener(gadget.Temperature, id))
	})

	suite.Run("listen cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		suite.Assert().ErrorIs(suite.Device.Listen(ctx, 0), context.Canceled)
	})
}

func (suite *DeviceTestSuite) TestDownloadLog() {
	// GOAL: Verify a full download over the notification queue
	//
	// TEST SCENARIO: Gadget streams 10 samples per channel on start → DownloadLog → Finished with 10 samples each, temporary subscriptions released, progress reaches 100

	suite.Gadget.OnDownload(func(g *testutils.Humigadget) { g.StreamHistory(4, nil) })

	var mu sync.Mutex
	var progress []float64
	res, err := suite.Device.DownloadLog(suite.Ctx(), time.Second, func(p float64) {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, p)
	})

	suite.Require().NoError(err)
	suite.Require().NotNil(res)
	suite.Assert().True(res.Complete())
	suite.Assert().Equal(gadget.Finished, res.Status)

	for _, kind := range []gadget.ChannelKind{gadget.Temperature, gadget.Humidity} {
		ch := res.Channels[kind]
		suite.Require().NotNil(ch, kind.String())
		suite.Assert().Len(ch.Samples, 10, kind.String())
		suite.Assert().Empty(ch.Missed, kind.String())
	}
	suite.Assert().InDelta(21.0, res.Channels[gadget.Temperature].Samples[0].Value, 1e-6)
	suite.Assert().InDelta(50.0, res.Channels[gadget.Humidity].Samples[9].Value, 1e-6)
	suite.Assert().NotContains(res.Channels, gadget.Battery, "battery MUST not take part in downloads")

	suite.Assert().False(suite.Gadget.Subscribed(testutils.TemperatureCCCDHandle), "temporary subscription MUST be released")
	suite.Assert().False(suite.Gadget.Subscribed(testutils.HumidityCCCDHandle), "temporary subscription MUST be released")
	suite.Assert().False(suite.Device.IsDownloading())
	suite.Assert().Equal(gadget.LiveRouting, suite.Device.Routing())

	mu.Lock()
	suite.Require().NotEmpty(progress)
	suite.Assert().Equal(100.0, progress[len(progress)-1])
	mu.Unlock()

	series := res.Series()
	suite.Assert().Len(series["temperature"], 10)
	suite.Assert().Equal(int64(9000), series["temperature"][0].TimestampMs)
}

func (suite *DeviceTestSuite) TestDownloadLogKeepsExistingSubscriptions() {
	suite.Require().NoError(suite.Device.Subscribe(suite.Ctx(), gadget.Temperature))
	suite.Gadget.OnDownload(func(g *testutils.Humigadget) { g.StreamHistory(10, nil) })

	res, err := suite.Device.DownloadLog(suite.Ctx(), time.Second, nil)

	suite.Require().NoError(err)
	suite.Assert().True(res.Complete())
	suite.Assert().True(suite.Gadget.Subscribed(testutils.TemperatureCCCDHandle), "user subscription MUST survive the download")
	suite.Assert().False(suite.Gadget.Subscribed(testutils.HumidityCCCDHandle))
}

func (suite *DeviceTestSuite) TestDownloadLogWithLostFrames() {
	// GOAL: Verify lost frames show up as missed ids without failing the download
	//
	// TEST SCENARIO: Frames of 4 samples, frame starting at id 5 lost → Finished, ids 5-8 missed on both channels

	suite.Gadget.OnDownload(func(g *testutils.Humigadget) { g.StreamHistory(4, map[uint32]bool{5: true}) })

	res, err := suite.Device.DownloadLog(suite.Ctx(), time.Second, nil)

	suite.Require().NoError(err)
	suite.Assert().Equal(gadget.Finished, res.Status)
	for _, kind := range res.Kinds() {
		suite.Assert().Equal([]uint32{5, 6, 7, 8}, res.Channels[kind].Missed, kind.String())
		suite.Assert().Len(res.Channels[kind].Samples, 6, kind.String())
	}
}

func (suite *DeviceTestSuite) TestDownloadLogOverallTimeout() {
	// GOAL: Verify a silent gadget cannot hold DownloadLog past its overall timeout
	//
	// TEST SCENARIO: Gadget sends nothing → overall timeout 50ms → Failed result with ErrDownloadTimeout, no call error

	res, err := suite.Device.DownloadLog(suite.Ctx(), 50*time.Millisecond, nil)

	suite.Require().NoError(err)
	suite.Require().NotNil(res)
	suite.Assert().Equal(gadget.Failed, res.Status)
	suite.Assert().ErrorIs(res.Err, gadget.ErrDownloadTimeout)
	suite.Assert().Equal([][]byte{{1}, {0}}, suite.Gadget.WritesTo(testutils.CharacteristicWrite, testutils.StartDownloadHandle))
}

func (suite *DeviceTestSuite) TestDownloadLogCancelled() {
	// GOAL: Verify cancelling the caller's context aborts the download and still stops the logger
	//
	// TEST SCENARIO: Gadget sends half the history → context cancelled → context error returned with the partial result

	suite.Gadget.OnDownload(func(g *testutils.Humigadget) {
		g.SendFrame(testutils.TemperatureHandle, 1, 1, 2, 3, 4, 5)
	})

	ctx, cancel := context.WithCancel(suite.Ctx())
	time.AfterFunc(30*time.Millisecond, cancel)

	res, err := suite.Device.DownloadLog(ctx, time.Second, nil)

	suite.Assert().ErrorIs(err, context.Canceled)
	suite.Require().NotNil(res)
	suite.Assert().True(errors.Is(res.Err, gadget.ErrAborted))
	suite.Assert().Len(res.Channels[gadget.Temperature].Samples, 5)
	suite.Assert().Equal([][]byte{{1}, {0}}, suite.Gadget.WritesTo(testutils.CharacteristicWrite, testutils.StartDownloadHandle),
		"stop signal MUST be sent despite the cancelled context")
	suite.Assert().False(suite.Gadget.Subscribed(testutils.TemperatureCCCDHandle))
}

func (suite *DeviceTestSuite) TestRoutingIsolation() {
	// GOAL: Verify download frames never reach live listeners while non-download channels keep flowing
	//
	// TEST SCENARIO: Download running → temperature sample frame and battery notification queued → Listen → temperature listener silent, battery listener called

	suite.SubscribeLogChannels()
	suite.Require().NoError(suite.Device.Subscribe(suite.Ctx(), gadget.Battery))

	var mu sync.Mutex
	tempCalls, battery := 0, uint64(0)
	_, err := suite.Device.AddListener(gadget.Temperature, func(gatt.Value, *gatt.Subscribable) error {
		mu.Lock()
		defer mu.Unlock()
		tempCalls++
		return nil
	})
	suite.Require().NoError(err)
	_, err = suite.Device.AddListener(gadget.Battery, func(v gatt.Value, _ *gatt.Subscribable) error {
		mu.Lock()
		defer mu.Unlock()
		battery = v.Uint64()
		return nil
	})
	suite.Require().NoError(err)

	suite.Require().NoError(suite.Device.Session().Start(suite.Ctx()))
	suite.Gadget.SendFrame(testutils.TemperatureHandle, 1, 21, 22)
	suite.Gadget.Notify(testutils.BatteryHandle, []byte{86})

	suite.Require().NoError(suite.Device.Listen(suite.Ctx(), 30*time.Millisecond))

	mu.Lock()
	suite.Assert().Equal(0, tempCalls, "sample frames MUST go to the session only")
	suite.Assert().Equal(uint64(86), battery)
	mu.Unlock()
	suite.Assert().InDelta(0.0, suite.Device.Progress(), 1e-9, "humidity has not started yet")

	suite.Device.Abort(suite.Ctx())
	suite.Assert().Len(suite.Device.Session().Result().Channels[gadget.Temperature].Samples, 2)
}

func (suite *DeviceTestSuite) TestLateSampleFramesAfterDownload() {
	// GOAL: Verify history frames arriving after the download ended are dropped quietly
	//
	// TEST SCENARIO: Download aborted → gadget still sends a sample frame and a short malformed value → Listen → no listener call, sample frame logged at debug, short frame still warns

	suite.Require().NoError(suite.Device.Subscribe(suite.Ctx(), gadget.Temperature))
	var mu sync.Mutex
	calls := 0
	_, err := suite.Device.AddListener(gadget.Temperature, func(gatt.Value, *gatt.Subscribable) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})
	suite.Require().NoError(err)

	suite.Require().NoError(suite.Device.Session().Start(suite.Ctx()))
	suite.Device.Abort(suite.Ctx())
	suite.Require().Equal(gadget.LiveRouting, suite.Device.Routing())

	suite.Gadget.SendFrame(testutils.TemperatureHandle, 3, 23, 24)
	suite.Gadget.Notify(testutils.TemperatureHandle, []byte{1, 2, 3})
	suite.Require().NoError(suite.Device.Listen(suite.Ctx(), 30*time.Millisecond))

	mu.Lock()
	suite.Assert().Equal(0, calls)
	mu.Unlock()
	suite.Assert().True(suite.Logs.Contains("level=debug", "Dropped sample frame outside a download", "handle=0x0021"))
	suite.Assert().True(suite.Logs.Contains("level=warning", "Notification dispatch failed"),
		"a short malformed live frame MUST still warn")
}

func TestDeviceTestSuite(t *testing.T) {
	depend.RunSuite(t, new(DeviceTestSuite))
}
