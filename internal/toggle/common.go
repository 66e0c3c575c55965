package toggle

import "time"

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}
