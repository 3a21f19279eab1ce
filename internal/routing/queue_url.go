package routing

import "strings"

// BuildQueueURL derives the queue target from a color and either an
// explicit queue name or the default per-environment, per-color URL.
//
// If queueName is empty, defaultURL (the configured blue/green URL for the
// environment) is used. If queueName lacks a "-blue"/"-green" suffix, the
// active color is appended; queueName is otherwise used as given, with no
// host or account prefix added. A ".fifo" suffix is ensured either way.
func BuildQueueURL(queueName, color, defaultURL string) string {
	if queueName == "" {
		return ensureFIFO(defaultURL)
	}
	if !strings.HasSuffix(queueName, "-blue") && !strings.HasSuffix(queueName, "-green") {
		queueName = queueName + "-" + color
	}
	return ensureFIFO(queueName)
}

func ensureFIFO(url string) string {
	if url == "" || strings.HasSuffix(url, ".fifo") {
		return url
	}
	return url + ".fifo"
}
