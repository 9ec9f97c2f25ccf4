package transport

func (c *localComm) Alltoall(
	sendBuf any, sendCount int,
	recvBuf any, recvCount int,
	dtype Datatype,
) error {
	size := c.Size()
	sendCounts := make([]int, size)
	sendDispls := make([]int, size)
	recvCounts := make([]int, size)
	recvDispls := make([]int, size)

	for i := 0; i < size; i++ {
		sendCounts[i] = sendCount
		sendDispls[i] = i * sendCount
		recvCounts[i] = recvCount
		recvDispls[i] = i * recvCount
	}

	return c.Alltoallv(
		sendBuf, sendCounts, sendDispls,
		recvBuf, recvCounts, recvDispls,
		dtype,
	)
}

func (c *localComm) Alltoallv(
	sendBuf any, sendCounts, sendDispls []int,
	recvBuf any, recvCounts, recvDispls []int,
	dtype Datatype,
) error {
	err := c.alltoallvArgsMustBeValid(
		sendBuf, sendCounts, sendDispls,
		recvBuf, recvCounts, recvDispls,
		dtype)
	if err != nil {
		return err
	}

	for dst := 0; dst < c.Size(); dst++ {
		chunk := subBuffer(sendBuf, sendDispls[dst], sendCounts[dst])
		c.post(c.collCtx, chunk, sendCounts[dst], dtype, dst, collectiveTag)
	}

	handles := make([]*Handle, c.Size())
	for src := 0; src < c.Size(); src++ {
		chunk := subBuffer(recvBuf, recvDispls[src], recvCounts[src])
		handles[src] = c.postRecv(
			c.collCtx, chunk, recvCounts[src], dtype, src, collectiveTag)
	}

	var firstErr error
	for _, h := range handles {
		_, err := c.Wait(h)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (c *localComm) alltoallvArgsMustBeValid(
	sendBuf any, sendCounts, sendDispls []int,
	recvBuf any, recvCounts, recvDispls []int,
	dtype Datatype,
) error {
	size := c.Size()
	if len(sendCounts) != size || len(sendDispls) != size ||
		len(recvCounts) != size || len(recvDispls) != size {
		return ErrCount
	}

	if err := countsMustFit(sendBuf, sendCounts, sendDispls, dtype); err != nil {
		return err
	}

	return countsMustFit(recvBuf, recvCounts, recvDispls, dtype)
}

func countsMustFit(buf any, counts, displs []int, dtype Datatype) error {
	extent := 0
	for i := range counts {
		if counts[i] < 0 || displs[i] < 0 {
			return ErrCount
		}

		if counts[i] > 0 && displs[i]+counts[i] > extent {
			extent = displs[i] + counts[i]
		}
	}

	return bufferMustMatch(buf, extent, dtype)
}

func (c *localComm) Barrier() error {
	return c.Alltoall(nil, 0, nil, 0, IntType)
}
